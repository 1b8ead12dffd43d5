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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kestrel-lang/kestrel/internal/errors"
	"github.com/kestrel-lang/kestrel/internal/output"
	"github.com/kestrel-lang/kestrel/internal/ui"
	"github.com/kestrel-lang/kestrel/pkg/ast"
	"github.com/kestrel-lang/kestrel/pkg/cache"
	"github.com/kestrel-lang/kestrel/pkg/corelib"
	"github.com/kestrel-lang/kestrel/pkg/loader"
	"github.com/kestrel-lang/kestrel/pkg/lower"
	"github.com/kestrel-lang/kestrel/pkg/metrics"
	"github.com/kestrel-lang/kestrel/pkg/object"
	"github.com/kestrel-lang/kestrel/pkg/parser"
	"github.com/kestrel-lang/kestrel/pkg/resolver"
	"github.com/kestrel-lang/kestrel/pkg/vm"
)

// BuildResult summarizes one compile.
type BuildResult struct {
	ProjectID   string   `json:"project_id"`
	Entry       string   `json:"entry"`
	Files       int      `json:"files"`
	Functions   int      `json:"functions"`
	Classes     int      `json:"classes"`
	Globals     int      `json:"globals"`
	CacheHits   int      `json:"cache_hits"`
	CacheMisses int      `json:"cache_misses"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
}

// compiled bundles everything a compile produces, shared by build, run,
// watch and serve.
type compiled struct {
	Program *object.Program
	Code    []vm.Instruction
	Files   []*ast.File
	Result  *BuildResult
}

// runBuild executes the 'build' CLI command.
func runBuild(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	noCache := fs.Bool("no-cache", false, "Skip the compile cache entirely")
	metricsAddr := fs.String("metrics-addr", "", "Expose Prometheus /metrics on this address during the build")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kestrel build [options]

Description:
  Parses and resolves the configured entry file and everything it imports,
  lowers the program to bytecode, and records per-file symbol metadata in
  the compile cache.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON) // LoadConfig returns UserError
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				ui.Warningf("metrics server error: %v", err)
			}
		}()
	}

	c, err := compileProject(cfg, configPath, globals, !globals.Quiet, *noCache)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(c.Result); err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot encode build result",
				"JSON encoding failed unexpectedly",
				"This is a bug. Please report it",
				err,
			), true)
		}
		if len(c.Result.Diagnostics) > 0 {
			os.Exit(1)
		}
		return
	}

	printBuildResult(c.Result)
	if len(c.Result.Diagnostics) > 0 {
		os.Exit(1)
	}
}

func printBuildResult(result *BuildResult) {
	if len(result.Diagnostics) > 0 {
		ui.Header("Build Failed")
		for _, d := range result.Diagnostics {
			fmt.Fprintf(os.Stderr, "  %s\n", d)
		}
		fmt.Println()
	} else {
		ui.Header("Build Complete")
	}
	fmt.Printf("%s %s\n", ui.Label("Project ID:"), result.ProjectID)
	fmt.Printf("%s %s\n", ui.Label("Entry:"), ui.DimText(result.Entry))
	fmt.Printf("Files Compiled: %s\n", ui.CountText(result.Files))
	fmt.Printf("Functions: %s\n", ui.CountText(result.Functions))
	fmt.Printf("Classes: %s\n", ui.CountText(result.Classes))
	fmt.Printf("Globals: %s\n", ui.CountText(result.Globals))
	if result.CacheHits+result.CacheMisses > 0 {
		fmt.Printf("Cache: %s hits, %s misses\n", ui.CountText(result.CacheHits), ui.CountText(result.CacheMisses))
	}
	fmt.Printf("Duration: %s\n", ui.DimText(fmt.Sprintf("%dms", result.DurationMS)))
}

// compileProject runs the whole pipeline: builtin registration, recursive
// parse+resolve from the entry file, compile-cache bookkeeping, lowering.
func compileProject(cfg *Config, configPath string, globals GlobalFlags, showProgress, noCache bool) (*compiled, error) {
	start := time.Now()

	entry, err := entryFilePath(cfg)
	if err != nil {
		return nil, err
	}
	logInfo(globals, "compiling %s", entry)

	program := object.NewProgram()
	if _, err := corelib.RegisterErrorClasses(program); err != nil {
		return nil, errors.NewInternalError(
			"Cannot register builtin error classes",
			err.Error(),
			"This is a bug. Please report it",
			err,
		)
	}
	if err := corelib.RegisterFuncs(program, os.Stdout); err != nil {
		return nil, errors.NewInternalError(
			"Cannot register builtin functions",
			err.Error(),
			"This is a bug. Please report it",
			err,
		)
	}

	ld := loader.New(parser.Parse)
	entryAST, err := ld.GetAST("file://" + entry)
	if err != nil {
		return nil, errors.NewInputError(
			"Parse error",
			err.Error(),
			"Fix the reported syntax error and rebuild",
			err,
		)
	}

	res := resolver.New(program, ld)
	if err := res.ResolveAST(entryAST, true); err != nil {
		return nil, errors.NewInputError(
			"Resolution failed",
			err.Error(),
			"",
			err,
		)
	}

	files := ld.All()
	metrics.FilesCompiled.Add(float64(len(files)))

	result := &BuildResult{
		ProjectID: cfg.ProjectID,
		Entry:     cfg.Source.Entry,
		Files:     len(files),
	}
	for _, f := range files {
		for _, d := range f.Diagnostics {
			result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("%s: %s", f.URI, d.Message))
		}
	}

	if len(result.Diagnostics) == 0 {
		code, err := lower.Program(program, files)
		if err != nil {
			return nil, errors.NewInternalError(
				"Lowering failed",
				err.Error(),
				"This is a bug. Please report it with the source that triggered it",
				err,
			)
		}

		if !noCache && cfg.Cache.Engine != "off" {
			hits, misses := updateCompileCache(cfg, configPath, globals, program, files, showProgress)
			result.CacheHits, result.CacheMisses = hits, misses
		}

		result.Functions = len(program.Functions)
		result.Classes = len(program.Classes)
		result.Globals = len(program.Globals)
		result.DurationMS = time.Since(start).Milliseconds()

		metrics.FunctionsRegistered.Set(float64(len(program.Functions)))
		metrics.ClassesRegistered.Set(float64(len(program.Classes)))
		metrics.GlobalsRegistered.Set(float64(len(program.Globals)))

		return &compiled{Program: program, Code: code, Files: files, Result: result}, nil
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return &compiled{Program: program, Files: files, Result: result}, nil
}

// updateCompileCache records every compiled file's resolved symbols in the
// cache, keyed by content hash. Failures are warnings, never build errors:
// the cache is an accelerator, not a correctness dependency.
func updateCompileCache(cfg *Config, configPath string, globals GlobalFlags, program *object.Program, files []*ast.File, showProgress bool) (hits, misses int) {
	dataDir, err := projectDataDir(cfg, configPath)
	if err != nil {
		ui.Warningf("compile cache disabled: %v", err)
		return 0, 0
	}
	backend, err := cache.NewEmbeddedBackend(cache.EmbeddedConfig{
		DataDir:   dataDir,
		Engine:    cfg.Cache.Engine,
		ProjectID: cfg.ProjectID,
	})
	if err != nil {
		ui.Warningf("compile cache disabled: %v", err)
		return 0, 0
	}
	defer func() { _ = backend.Close() }()
	if err := backend.EnsureSchema(); err != nil {
		ui.Warningf("compile cache disabled: %v", err)
		return 0, 0
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("caching symbols"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
	}

	for _, f := range files {
		if bar != nil {
			_ = bar.Add(1)
		}
		hash, err := hashFile(f.URI)
		if err != nil {
			continue
		}
		if _, ok, err := backend.LookupFile(f.URI, hash); err == nil && ok {
			hits++
			metrics.CompileCacheHits.Inc()
			continue
		}
		misses++
		metrics.CompileCacheMisses.Inc()
		if err := backend.PutFile(fileRecordOf(program, f, hash)); err != nil {
			ui.Warningf("compile cache write failed for %s: %v", f.URI, err)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return hits, misses
}

func hashFile(uri string) (string, error) {
	path := strings.TrimPrefix(uri, "file://")
	data, err := os.ReadFile(path) //nolint:gosec // G304: compiled source path
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// fileRecordOf extracts a file's registered symbols from the program for
// the cache.
func fileRecordOf(program *object.Program, f *ast.File, hash string) *cache.FileRecord {
	rec := &cache.FileRecord{
		Path:       f.URI,
		Hash:       hash,
		ModulePath: f.ModulePath,
		Library:    f.Library,
	}
	module, _ := program.Symbols.ModuleFor(f.ModulePath, f.Library)
	for _, fs := range module.FuncSymbols {
		rec.Funcs = append(rec.Funcs, cache.FuncSymbolRecord{
			Name:       fs.Name,
			ArgCount:   fs.ArgCount,
			HasSelfArg: fs.HasSelfArg,
			FuncID:     fs.GlobalID,
		})
	}
	for _, cs := range module.ClassSymbols {
		rec.Classes = append(rec.Classes, cache.ClassSymbolRecord{Name: cs.Name, ClassID: cs.GlobalID})
	}
	for _, gs := range module.GlobalVarSymbols {
		rec.Globals = append(rec.Globals, cache.GlobalSymbolRecord{Name: gs.Name, IsConst: gs.IsConst, GlobalID: gs.GlobalID})
	}
	return rec
}
