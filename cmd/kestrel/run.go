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
	"github.com/kestrel-lang/kestrel/pkg/metrics"
	"github.com/kestrel-lang/kestrel/pkg/vm"
)

// runRun executes the 'run' CLI command: compile, then execute the entry
// file's main function on a fresh VM thread.
func runRun(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	noCache := fs.Bool("no-cache", false, "Skip the compile cache")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kestrel run [options]

Description:
  Compiles the project and executes it: the synthesized global initializer
  first (if any), then the entry file's main function. The process exit
  code is 0 on normal completion and nonzero when an exception escapes
  uncaught.

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

	c, err := compileProject(cfg, configPath, globals, false, *noCache)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if len(c.Result.Diagnostics) > 0 {
		for _, d := range c.Result.Diagnostics {
			fmt.Fprintf(os.Stderr, "%s\n", d)
		}
		os.Exit(1)
	}
	if c.Program.MainFuncID < 0 {
		errors.FatalError(errors.NewInputError(
			"No main function",
			"The entry file does not define a top-level function named main",
			"Add 'func main { ... }' to the entry file",
			nil,
		), globals.JSON)
	}

	exit := vm.ExecuteProgram(c.Program, c.Code)
	metrics.HeapLiveValues.Set(0)
	os.Exit(exit)
}
