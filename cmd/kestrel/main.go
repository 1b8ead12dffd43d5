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

// Package main implements the kestrel CLI: compiling source trees to
// bytecode, executing them, and querying the compiled program.
//
// Usage:
//
//	kestrel init                  Create .kestrel/project.yaml configuration
//	kestrel build                 Compile the project
//	kestrel run                   Compile and execute
//	kestrel status [--json]       Show project/compile status
//	kestrel query <script>        Execute CozoScript against the compile cache
//	kestrel serve                 Start local HTTP query server
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kestrel-lang/kestrel/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool // Output in JSON format (for applicable commands)
	NoColor bool // Disable color output
	Verbose int  // Verbosity level: 0=normal, 1=-v (info), 2=-vv (debug)
	Quiet   bool // Suppress non-essential output (progress, info messages)
}

// logInfo outputs an informational message to stderr if verbose mode is enabled.
// Messages are suppressed if quiet mode is active.
func logInfo(globals GlobalFlags, format string, args ...interface{}) {
	if !globals.Quiet && globals.Verbose >= 1 {
		fmt.Fprintf(os.Stderr, "[INFO] "+format+"\n", args...)
	}
}

// logDebug outputs a debug message to stderr if debug verbosity is enabled (-vv).
// Debug messages are shown regardless of quiet mode for troubleshooting.
func logDebug(globals GlobalFlags, format string, args ...interface{}) { //nolint:unused // Reserved for future use
	if globals.Verbose >= 2 {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

func main() {
	// Global flags with short forms
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to .kestrel/project.yaml (default: ./.kestrel/project.yaml)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, info messages)")
	)

	// Stop parsing at the first non-flag argument (the command name), so
	// subcommand-specific flags like "reset --yes" reach the subcommand
	// handlers instead of being rejected by the global flag parser.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `kestrel - compiler and VM for the kestrel language

Usage:
  kestrel <command> [options]

Commands:
  init          Create .kestrel/project.yaml configuration
  build         Compile the project to bytecode
  run           Compile and execute (entry file's main function)
  status        Show project and compile status
  config        Show current configuration
  query         Execute CozoScript against the compile cache
  watch         Recompile when source files change
  serve         Start local HTTP server for queries and metrics
  reset         Reset local compile-cache data (destructive!)

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output (progress, info messages)
  -c, --config      Path to .kestrel/project.yaml
  -V, --version     Show version and exit

Examples:
  kestrel init                       Create configuration from flags
  kestrel build                      Compile the configured entry file
  kestrel run                        Compile and execute
  kestrel status --json              Output status as JSON
  kestrel query "?[name] := *kestrel_func_symbol{name}"

Getting Started:
  1. Initialize configuration:  kestrel init
  2. Compile your project:      kestrel build
  3. Run it:                    kestrel run

Data Storage:
  The compile cache is stored locally in the configured data directory
  (default: ~/.kestrel/data/<project_id>/)

For detailed command help: kestrel <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("kestrel version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	// Check NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}

	// JSON mode auto-enables quiet to prevent progress bars corrupting JSON output
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}

	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "build":
		runBuild(cmdArgs, *configPath, globals)
	case "run":
		runRun(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	case "config":
		runConfig(cmdArgs, *configPath, globals)
	case "query":
		runQuery(cmdArgs, *configPath, globals)
	case "watch":
		runWatch(cmdArgs, *configPath, globals)
	case "reset":
		runReset(cmdArgs, *configPath, globals)
	case "serve":
		os.Exit(runServe(cmdArgs, *configPath, globals))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
