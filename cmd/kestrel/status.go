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
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kestrel-lang/kestrel/internal/errors"
	"github.com/kestrel-lang/kestrel/internal/output"
	"github.com/kestrel-lang/kestrel/internal/ui"
	"github.com/kestrel-lang/kestrel/pkg/debug"
)

// StatusResult is the JSON shape of 'kestrel status --json'.
type StatusResult struct {
	ProjectID string    `json:"project_id"`
	Entry     string    `json:"entry"`
	DataDir   string    `json:"data_dir"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`

	Counts debug.ProgramCounts `json:"counts"`

	Diagnostics []string `json:"diagnostics,omitempty"`
}

// runStatus executes the 'status' CLI command: a full compile, reported
// without running anything.
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kestrel status [--json]

Description:
  Compiles the project (parsing and resolving every file, then recording
  symbols in the compile cache as build does) and reports what the program
  object model contains, without executing it.

Options:
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

	dataDir, err := projectDataDir(cfg, configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	c, err := compileProject(cfg, configPath, globals, false, false)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	_, statErr := os.Stat(dataDir)
	result := &StatusResult{
		ProjectID:   cfg.ProjectID,
		Entry:       cfg.Source.Entry,
		DataDir:     dataDir,
		Cached:      statErr == nil,
		Timestamp:   time.Now(),
		Counts:      debug.Counts(c.Program),
		Diagnostics: c.Result.Diagnostics,
	}

	if globals.JSON {
		if err := output.JSON(result); err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot encode status", "JSON encoding failed", "", err), true)
		}
		return
	}

	ui.Header("Project Status")
	fmt.Printf("%s %s\n", ui.Label("Project ID:"), result.ProjectID)
	fmt.Printf("%s %s\n", ui.Label("Entry:"), ui.DimText(result.Entry))
	fmt.Printf("%s %s\n", ui.Label("Cache Dir:"), ui.DimText(result.DataDir))

	res, err := debug.Status(c.Program)
	if err == nil {
		fmt.Println()
		fmt.Print(res.Content)
	}

	if len(result.Diagnostics) > 0 {
		ui.SubHeader("Diagnostics:")
		for _, d := range result.Diagnostics {
			fmt.Printf("  %s\n", d)
		}
		os.Exit(1)
	}
}
