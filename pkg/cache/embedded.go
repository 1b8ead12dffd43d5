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

// Package cache persists resolved per-file symbol metadata between builds,
// keyed by source content hash, so a build can tell an unchanged file (a
// cache hit) from a changed one. Stored records are not replayed: every
// build still parses and resolves every file. Instruction streams are never
// stored; only symbol metadata is.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cozo "github.com/kestrel-lang/kestrel/pkg/cache/cozodb"
)

// QueryResult is a backend-agnostic view of a query's rows.
type QueryResult struct {
	Headers []string
	Rows    [][]any
}

// FromNamedRows converts the CozoDB driver's result shape.
func FromNamedRows(rows cozo.NamedRows) *QueryResult {
	return &QueryResult{Headers: rows.Headers, Rows: rows.Rows}
}

// EmbeddedBackend implements the compile cache over a local CozoDB
// instance. This is the only backend; the cache is strictly per-machine.
type EmbeddedBackend struct {
	db     *cozo.CozoDB
	mu     sync.RWMutex
	closed bool
}

// EmbeddedConfig configures the embedded backend.
type EmbeddedConfig struct {
	// DataDir is the directory where CozoDB stores its data.
	// Defaults to ~/.kestrel/data/<project_id>
	DataDir string

	// Engine is the CozoDB storage engine: "rocksdb", "sqlite", or "mem".
	// Defaults to "rocksdb" for persistence.
	Engine string

	// ProjectID is used to namespace the data directory.
	ProjectID string
}

// NewEmbeddedBackend creates a new embedded CozoDB backend.
func NewEmbeddedBackend(config EmbeddedConfig) (*EmbeddedBackend, error) {
	if config.Engine == "" {
		config.Engine = "rocksdb"
	}
	if config.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		config.DataDir = filepath.Join(homeDir, ".kestrel", "data")
		if config.ProjectID != "" {
			config.DataDir = filepath.Join(config.DataDir, config.ProjectID)
		}
	}

	if err := os.MkdirAll(config.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := cozo.New(config.Engine, config.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open cozodb: %w", err)
	}

	return &EmbeddedBackend{db: &db}, nil
}

// Query executes a read-only CozoScript query.
func (b *EmbeddedBackend) Query(ctx context.Context, script string) (*QueryResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.db.RunReadOnly(script, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return FromNamedRows(result), nil
}

// Execute runs a CozoScript mutation.
func (b *EmbeddedBackend) Execute(ctx context.Context, script string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if _, err := b.db.Run(script, nil); err != nil {
		return fmt.Errorf("execute failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *EmbeddedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.db.Close()
	return nil
}

// DB returns the underlying CozoDB instance for advanced operations (the
// `kestrel query` command). Prefer the typed methods elsewhere.
func (b *EmbeddedBackend) DB() *cozo.CozoDB {
	return b.db
}

// EnsureSchema creates the compile-cache tables if they don't exist.
// Idempotent and safe to call multiple times.
func (b *EmbeddedBackend) EnsureSchema() error {
	tables := []string{
		`:create kestrel_file { path: String => hash: String, module_path: String, library: String }`,
		`:create kestrel_func_symbol { id: String => file_path: String, name: String, arg_count: Int, has_self_arg: Bool, func_id: Int }`,
		`:create kestrel_class_symbol { id: String => file_path: String, name: String, class_id: Int }`,
		`:create kestrel_global_symbol { id: String => file_path: String, name: String, is_const: Bool, global_id: Int }`,
		// Project metadata for incremental builds
		`:create kestrel_project_meta { key: String => value: String }`,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, table := range tables {
		if _, err := b.db.Run(table, nil); err != nil {
			errStr := err.Error()
			if strings.Contains(errStr, "already exists") ||
				strings.Contains(errStr, "conflicts with an existing one") {
				continue
			}
			return fmt.Errorf("create table failed: %w", err)
		}
	}
	return nil
}

// FuncSymbolRecord is one cached function registration.
type FuncSymbolRecord struct {
	Name       string
	ArgCount   int
	HasSelfArg bool
	FuncID     int64
}

// ClassSymbolRecord is one cached class registration.
type ClassSymbolRecord struct {
	Name    string
	ClassID int64
}

// GlobalSymbolRecord is one cached global variable registration.
type GlobalSymbolRecord struct {
	Name     string
	IsConst  bool
	GlobalID int64
}

// FileRecord is everything the cache stores for one resolved source file.
type FileRecord struct {
	Path       string
	Hash       string
	ModulePath string
	Library    string

	Funcs   []FuncSymbolRecord
	Classes []ClassSymbolRecord
	Globals []GlobalSymbolRecord
}

// LookupFile returns the cached record for path, if its stored hash matches
// hash. A hash mismatch reads as a miss; the stale rows are replaced on the
// next PutFile.
func (b *EmbeddedBackend) LookupFile(path, hash string) (*FileRecord, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, false, fmt.Errorf("backend is closed")
	}

	params := map[string]any{"path": path}
	result, err := b.db.Run(`?[hash, module_path, library] := *kestrel_file{path, hash, module_path, library}, path = $path`, params)
	if err != nil {
		return nil, false, err
	}
	if len(result.Rows) == 0 {
		return nil, false, nil
	}
	storedHash, _ := result.Rows[0][0].(string)
	if storedHash != hash {
		return nil, false, nil
	}

	rec := &FileRecord{Path: path, Hash: storedHash}
	rec.ModulePath, _ = result.Rows[0][1].(string)
	rec.Library, _ = result.Rows[0][2].(string)

	funcs, err := b.db.Run(`?[name, arg_count, has_self_arg, func_id] := *kestrel_func_symbol{file_path, name, arg_count, has_self_arg, func_id}, file_path = $path`, params)
	if err != nil {
		return nil, false, err
	}
	for _, row := range funcs.Rows {
		rec.Funcs = append(rec.Funcs, FuncSymbolRecord{
			Name:       asString(row[0]),
			ArgCount:   int(asInt(row[1])),
			HasSelfArg: asBool(row[2]),
			FuncID:     asInt(row[3]),
		})
	}

	classes, err := b.db.Run(`?[name, class_id] := *kestrel_class_symbol{file_path, name, class_id}, file_path = $path`, params)
	if err != nil {
		return nil, false, err
	}
	for _, row := range classes.Rows {
		rec.Classes = append(rec.Classes, ClassSymbolRecord{Name: asString(row[0]), ClassID: asInt(row[1])})
	}

	globals, err := b.db.Run(`?[name, is_const, global_id] := *kestrel_global_symbol{file_path, name, is_const, global_id}, file_path = $path`, params)
	if err != nil {
		return nil, false, err
	}
	for _, row := range globals.Rows {
		rec.Globals = append(rec.Globals, GlobalSymbolRecord{
			Name:     asString(row[0]),
			IsConst:  asBool(row[1]),
			GlobalID: asInt(row[2]),
		})
	}

	return rec, true, nil
}

// PutFile replaces the cached record for rec.Path.
func (b *EmbeddedBackend) PutFile(rec *FileRecord) error {
	if err := b.DeleteEntriesForFile(rec.Path); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}

	_, err := b.db.Run(
		`?[path, hash, module_path, library] <- [[$path, $hash, $module_path, $library]] :put kestrel_file { path, hash, module_path, library }`,
		map[string]any{"path": rec.Path, "hash": rec.Hash, "module_path": rec.ModulePath, "library": rec.Library})
	if err != nil {
		return err
	}

	for _, fs := range rec.Funcs {
		_, err := b.db.Run(
			`?[id, file_path, name, arg_count, has_self_arg, func_id] <- [[$id, $path, $name, $arg_count, $has_self_arg, $func_id]] :put kestrel_func_symbol { id, file_path, name, arg_count, has_self_arg, func_id }`,
			map[string]any{
				"id": rec.Path + "#func#" + fs.Name, "path": rec.Path, "name": fs.Name,
				"arg_count": fs.ArgCount, "has_self_arg": fs.HasSelfArg, "func_id": fs.FuncID,
			})
		if err != nil {
			return err
		}
	}
	for _, cs := range rec.Classes {
		_, err := b.db.Run(
			`?[id, file_path, name, class_id] <- [[$id, $path, $name, $class_id]] :put kestrel_class_symbol { id, file_path, name, class_id }`,
			map[string]any{"id": rec.Path + "#class#" + cs.Name, "path": rec.Path, "name": cs.Name, "class_id": cs.ClassID})
		if err != nil {
			return err
		}
	}
	for _, gs := range rec.Globals {
		_, err := b.db.Run(
			`?[id, file_path, name, is_const, global_id] <- [[$id, $path, $name, $is_const, $global_id]] :put kestrel_global_symbol { id, file_path, name, is_const, global_id }`,
			map[string]any{"id": rec.Path + "#global#" + gs.Name, "path": rec.Path, "name": gs.Name, "is_const": gs.IsConst, "global_id": gs.GlobalID})
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteEntriesForFile removes all cached rows for a file path, used when a
// file changed or disappeared.
func (b *EmbeddedBackend) DeleteEntriesForFile(filePath string) error {
	queries := []string{
		`?[id] := *kestrel_func_symbol{id, file_path}, file_path = $path
		 :rm kestrel_func_symbol {id}`,
		`?[id] := *kestrel_class_symbol{id, file_path}, file_path = $path
		 :rm kestrel_class_symbol {id}`,
		`?[id] := *kestrel_global_symbol{id, file_path}, file_path = $path
		 :rm kestrel_global_symbol {id}`,
		`?[path] := *kestrel_file{path}, path = $path
		 :rm kestrel_file {path}`,
	}

	params := map[string]any{"path": filePath}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, query := range queries {
		if _, err := b.db.Run(query, params); err != nil {
			// Rows may simply not exist yet.
			continue
		}
	}
	return nil
}

// GetProjectMeta retrieves a metadata value by key, "" if absent.
func (b *EmbeddedBackend) GetProjectMeta(key string) (string, error) {
	query := `?[value] := *kestrel_project_meta{key, value}, key = $key`
	params := map[string]any{"key": key}

	b.mu.RLock()
	result, err := b.db.Run(query, params)
	b.mu.RUnlock()

	if err != nil {
		return "", err
	}
	if len(result.Rows) == 0 {
		return "", nil
	}
	if val, ok := result.Rows[0][0].(string); ok {
		return val, nil
	}
	return "", nil
}

// SetProjectMeta sets a metadata value by key.
func (b *EmbeddedBackend) SetProjectMeta(key, value string) error {
	query := `?[key, value] <- [[$key, $value]] :put kestrel_project_meta { key, value }`
	params := map[string]any{"key": key, "value": value}

	b.mu.Lock()
	_, err := b.db.Run(query, params)
	b.mu.Unlock()

	return err
}

// CozoDB returns numbers as float64 through JSON; symbol ids are ints.
func asInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
