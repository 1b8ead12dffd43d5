// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/kestrel-lang/kestrel/internal/errors"
	"github.com/kestrel-lang/kestrel/internal/ui"
)

// runInit executes the 'init' CLI command, creating .kestrel/project.yaml in
// the current directory.
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.BoolP("force", "f", false, "Overwrite an existing configuration")
	projectID := fs.String("project-id", "", "Project identifier (default: current directory name)")
	entry := fs.String("entry", "src/main.h64", "Entry file, relative to the project root")
	cacheEngine := fs.String("cache-engine", "rocksdb", "Compile cache engine: rocksdb, sqlite, mem, off")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kestrel init [options]

Description:
  Creates .kestrel/project.yaml in the current directory. The directory
  containing .kestrel is the project root: module paths are derived from
  file paths relative to it.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  kestrel init
  kestrel init --project-id myapp --entry src/main.h64
  kestrel init --force

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot determine working directory",
			"Operating system did not provide the current directory",
			"",
			err,
		), globals.JSON)
	}
	configPath := ConfigPathIn(cwd)

	if _, err := os.Stat(configPath); err == nil && !*force {
		errors.FatalError(errors.NewInputError(
			"Configuration already exists",
			fmt.Sprintf("%s already exists", configPath),
			"Pass --force to overwrite it",
			nil,
		), globals.JSON)
	}

	id := *projectID
	if id == "" {
		id = filepath.Base(cwd)
	}

	cfg := &Config{Version: configVersion, ProjectID: id}
	cfg.Source.Entry = *entry
	cfg.Cache.Engine = *cacheEngine

	if err := SaveConfig(cfg, configPath); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	ui.Successf("Created %s", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Create your entry file at %s\n", ui.DimText(*entry))
	fmt.Printf("  2. Run '%s' to compile\n", ui.Cyan.Sprint("kestrel build"))
	fmt.Printf("  3. Run '%s' to execute\n", ui.Cyan.Sprint("kestrel run"))
}
