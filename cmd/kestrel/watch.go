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
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	flag "github.com/spf13/pflag"

	"github.com/kestrel-lang/kestrel/internal/errors"
	"github.com/kestrel-lang/kestrel/internal/ui"
)

// runWatch executes the 'watch' CLI command: recompile whenever a source
// file in the resolved module graph changes.
func runWatch(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	debounce := fs.Duration("debounce", 300*time.Millisecond, "Quiet period after a change before rebuilding")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kestrel watch [options]

Description:
  Compiles the project, then watches every directory containing a resolved
  source file and recompiles on change. Stop with Ctrl-C.

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

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot create file watcher",
			err.Error(),
			"Your platform may limit inotify watches; raise the limit and retry",
			err,
		), globals.JSON)
	}
	defer func() { _ = watcher.Close() }()

	rebuild := func() {
		c, err := compileProject(cfg, configPath, globals, false, false)
		if err != nil {
			ui.Warningf("build failed: %v", err)
			return
		}
		if len(c.Result.Diagnostics) > 0 {
			for _, d := range c.Result.Diagnostics {
				fmt.Fprintf(os.Stderr, "  %s\n", d)
			}
			ui.Warningf("%d diagnostics", len(c.Result.Diagnostics))
		} else {
			ui.Successf("compiled %d files (%d functions)", c.Result.Files, c.Result.Functions)
		}

		// Re-watch: the module graph may have grown or shrunk.
		watched := make(map[string]bool)
		for _, f := range c.Files {
			dir := filepath.Dir(strings.TrimPrefix(f.URI, "file://"))
			if !watched[dir] {
				watched[dir] = true
				if err := watcher.Add(dir); err != nil {
					logInfo(globals, "cannot watch %s: %v", dir, err)
				}
			}
		}
	}

	rebuild()
	ui.Info("Watching for changes. Ctrl-C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var timer *time.Timer
	var timerCh <-chan time.Time // nil until the first change; receive blocks
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".h64") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logInfo(globals, "change: %s", event.Name)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(*debounce)
			timerCh = timer.C
		case <-timerCh:
			rebuild()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ui.Warningf("watch error: %v", err)
		case <-sigCh:
			fmt.Println()
			ui.Info("Stopped.")
			return
		}
	}
}
