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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kestrel-lang/kestrel/internal/errors"
	"github.com/kestrel-lang/kestrel/internal/ui"
	"github.com/kestrel-lang/kestrel/pkg/debug"
)

// runServe executes the 'serve' CLI command: compile once, then expose the
// compiled program over a small HTTP query surface plus Prometheus metrics.
func runServe(args []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:7474", "Listen address")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kestrel serve [options]

Description:
  Compiles the project, then serves it:

    GET /status                        program counts
    GET /search?pattern=&kind=&limit=  symbol search
    GET /disassemble?func=<name>       bytecode listing
    GET /trace?func=<name>&depth=      static call tree
    GET /metrics                       Prometheus metrics

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	c, err := compileProject(cfg, configPath, globals, !globals.Quiet, false)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if len(c.Result.Diagnostics) > 0 {
		for _, d := range c.Result.Diagnostics {
			fmt.Fprintf(os.Stderr, "  %s\n", d)
		}
		errors.FatalError(errors.NewInputError(
			"Build failed",
			fmt.Sprintf("%d diagnostics; the server only serves clean builds", len(c.Result.Diagnostics)),
			"Fix the reported diagnostics and restart",
			nil,
		), globals.JSON)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeToolResult(w, func() (*debug.ToolResult, error) { return debug.Status(c.Program) })
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		argsIn := debug.SearchSymbolsArgs{
			Pattern: r.URL.Query().Get("pattern"),
			Kind:    r.URL.Query().Get("kind"),
			Literal: r.URL.Query().Get("literal") == "true",
			Limit:   limit,
		}
		writeToolResult(w, func() (*debug.ToolResult, error) { return debug.SearchSymbols(c.Program, argsIn) })
	})
	mux.HandleFunc("/disassemble", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("func")
		writeToolResult(w, func() (*debug.ToolResult, error) {
			funcID, ok := debug.FindFunction(c.Program, name)
			if !ok {
				return debug.NewError(fmt.Sprintf("function %q not found", name)), nil
			}
			return debug.Disassemble(c.Program, c.Code, funcID)
		})
	})
	mux.HandleFunc("/trace", func(w http.ResponseWriter, r *http.Request) {
		depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))
		argsIn := debug.TraceCallsArgs{Function: r.URL.Query().Get("func"), MaxDepth: depth}
		writeToolResult(w, func() (*debug.ToolResult, error) { return debug.TraceCalls(c.Program, c.Code, argsIn) })
	})

	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	// Graceful shutdown on SIGINT/SIGTERM.
	idle := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		close(idle)
	}()

	ui.Infof("Serving %s on http://%s", cfg.ProjectID, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		ui.Warningf("server error: %v", err)
		return 1
	}
	<-idle
	return 0
}

// toolResponse is the JSON wrapper for debug tool output.
type toolResponse struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

func writeToolResult(w http.ResponseWriter, invoke func() (*debug.ToolResult, error)) {
	result, err := invoke()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if result.IsError {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(toolResponse{Content: result.Content, IsError: result.IsError})
}
