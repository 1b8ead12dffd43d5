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
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kestrel-lang/kestrel/internal/errors"
	"github.com/kestrel-lang/kestrel/internal/output"
	"github.com/kestrel-lang/kestrel/internal/ui"
	"github.com/kestrel-lang/kestrel/pkg/cache"
)

// runQuery executes the 'query' CLI command: raw CozoScript against the
// project's compile cache.
func runQuery(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kestrel query <cozoscript> [--json]

Description:
  Executes a read-only CozoScript query against the compile cache.

  Relations:
    kestrel_file          { path => hash, module_path, library }
    kestrel_func_symbol   { id => file_path, name, arg_count, has_self_arg, func_id }
    kestrel_class_symbol  { id => file_path, name, class_id }
    kestrel_global_symbol { id => file_path, name, is_const, global_id }

Examples:
  kestrel query "?[name] := *kestrel_func_symbol{name}"
  kestrel query "?[path, module_path] := *kestrel_file{path, module_path}" --json

`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	script := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if script == "" {
		errors.FatalError(errors.NewInputError(
			"Missing query",
			"No CozoScript was provided",
			"Pass the query as an argument: kestrel query \"?[name] := *kestrel_func_symbol{name}\"",
			nil,
		), globals.JSON)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	dataDir, err := projectDataDir(cfg, configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	backend, err := cache.NewEmbeddedBackend(cache.EmbeddedConfig{
		DataDir:   dataDir,
		Engine:    cfg.Cache.Engine,
		ProjectID: cfg.ProjectID,
	})
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot open compile cache",
			"The cache may be corrupted, locked by another process, or permission denied",
			"Run 'kestrel reset --yes' to rebuild it, then 'kestrel build'",
			err,
		), globals.JSON)
	}
	defer func() { _ = backend.Close() }()

	result, err := backend.Query(context.Background(), script)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Query failed",
			err.Error(),
			"Check the CozoScript syntax and relation names",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(result); err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot encode query result", "JSON encoding failed", "", err), true)
		}
		return
	}

	fmt.Println(strings.Join(result.Headers, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, fmt.Sprintf("%v", cell))
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
	fmt.Fprintf(os.Stderr, "\n%s\n", ui.DimText(fmt.Sprintf("%d rows", len(result.Rows))))
}
