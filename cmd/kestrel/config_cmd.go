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

	flag "github.com/spf13/pflag"

	"github.com/kestrel-lang/kestrel/internal/errors"
	"github.com/kestrel-lang/kestrel/internal/output"
	"github.com/kestrel-lang/kestrel/internal/ui"
)

// runConfig executes the 'config' CLI command, showing the effective
// configuration (after environment overrides).
func runConfig(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kestrel config [--json]

Description:
  Shows the effective configuration: the parsed .kestrel/project.yaml with
  environment overrides (KESTREL_PROJECT_ID, KESTREL_CACHE_ENGINE,
  KESTREL_DATA_DIR) applied.

`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		view := map[string]any{
			"config_path": cfg.ConfigPath,
			"version":     cfg.Version,
			"project_id":  cfg.ProjectID,
			"source": map[string]any{
				"entry": cfg.Source.Entry,
				"roots": cfg.Source.Roots,
			},
			"library_paths": cfg.LibraryPaths,
			"cache": map[string]any{
				"engine":         cfg.Cache.Engine,
				"local_data_dir": cfg.Cache.LocalDataDir,
			},
			"exclude": cfg.Exclude,
		}
		if err := output.JSON(view); err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot encode configuration", "JSON encoding failed", "", err), true)
		}
		return
	}

	ui.Header("Kestrel Configuration")
	fmt.Printf("%s  %s\n", ui.Label("Config File:"), ui.DimText(cfg.ConfigPath))
	fmt.Printf("%s      %s\n", ui.Label("Version:"), cfg.Version)
	fmt.Printf("%s   %s\n", ui.Label("Project ID:"), cfg.ProjectID)

	ui.SubHeader("Source:")
	fmt.Printf("  entry:  %s\n", cfg.Source.Entry)
	for _, r := range cfg.Source.Roots {
		fmt.Printf("  root:   %s\n", ui.DimText(r))
	}
	for _, l := range cfg.LibraryPaths {
		fmt.Printf("  lib:    %s\n", ui.DimText(l))
	}

	ui.SubHeader("Compile Cache:")
	engine := cfg.Cache.Engine
	if engine == "" {
		engine = "rocksdb"
	}
	fmt.Printf("  engine:   %s\n", engine)
	if cfg.Cache.LocalDataDir != "" {
		fmt.Printf("  data dir: %s\n", ui.DimText(cfg.Cache.LocalDataDir))
	}

	if len(cfg.Exclude) > 0 {
		ui.SubHeader("Excluded:")
		for _, pattern := range cfg.Exclude {
			fmt.Printf("  %s\n", ui.DimText(pattern))
		}
	}
}
