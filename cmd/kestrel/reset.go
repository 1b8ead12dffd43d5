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
	"github.com/kestrel-lang/kestrel/internal/ui"
)

// runReset executes the 'reset' CLI command, deleting the project's local
// compile-cache data.
func runReset(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	confirm := fs.BoolP("yes", "y", false, "Confirm the destructive reset")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kestrel reset [options]

Description:
  WARNING: This is a destructive operation that deletes all local
  compile-cache data for the current project
  (default: ~/.kestrel/data/<project_id>/).

  Use this if the cache is corrupted or you want a cold build. The next
  'kestrel build' rebuilds it from scratch.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Notes:
  This only affects cached data. Configuration (.kestrel/project.yaml) is
  not deleted; use 'kestrel init --force' to regenerate that.

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if !*confirm {
		errors.FatalError(errors.NewInputError(
			"Confirmation required",
			"The --yes flag is required to confirm this destructive operation",
			"Run 'kestrel reset --yes' to confirm deleting all cached data",
			nil,
		), false)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		// If no config, just clean up the data root directory.
		dataDir, rootErr := dataRootFromConfig(nil, configPath)
		if rootErr != nil {
			errors.FatalError(rootErr, globals.JSON)
		}
		if err := os.RemoveAll(dataDir); err != nil {
			ui.Warningf("Failed to remove data directory: %v", err)
		}
		ui.Success("Compile cache reset complete")
		return
	}

	dataDir, err := projectDataDir(cfg, configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "No cached data found for project %s\n", cfg.ProjectID)
		return
	}

	fmt.Printf("Resetting project %s (deleting %s)...\n", cfg.ProjectID, dataDir)

	if err := os.RemoveAll(dataDir); err != nil {
		errors.FatalError(errors.NewPermissionError(
			"Cannot delete data directory",
			fmt.Sprintf("Failed to remove %s - permission denied or file locked", dataDir),
			"Check directory permissions, ensure no other kestrel processes are running, and try again",
			err,
		), false)
	}

	ui.Success("Reset complete. All cached compile data has been deleted.")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  kestrel build    Recompile the project")
}
