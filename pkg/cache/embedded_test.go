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

//go:build cgo

package cache

import (
	"context"
	"testing"
)

// setupTestBackend creates an in-memory EmbeddedBackend with the schema
// applied. The caller is responsible for calling Close().
func setupTestBackend(t *testing.T) *EmbeddedBackend {
	t.Helper()
	config := EmbeddedConfig{
		DataDir: t.TempDir(),
		Engine:  "mem", // In-memory for fast tests
	}
	backend, err := NewEmbeddedBackend(config)
	if err != nil {
		t.Fatalf("setupTestBackend failed: %v", err)
	}
	t.Cleanup(func() {
		if err := backend.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	if err := backend.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return backend
}

func sampleRecord() *FileRecord {
	return &FileRecord{
		Path:       "file:///proj/foo/bar.h64",
		Hash:       "abc123",
		ModulePath: "foo.bar",
		Funcs: []FuncSymbolRecord{
			{Name: "main", ArgCount: 0, FuncID: 5},
			{Name: "helper", ArgCount: 2, FuncID: 6},
		},
		Classes: []ClassSymbolRecord{{Name: "Point", ClassID: 1}},
		Globals: []GlobalSymbolRecord{{Name: "limit", IsConst: true, GlobalID: 3}},
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	backend := setupTestBackend(t)
	if err := backend.EnsureSchema(); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
}

func TestPutAndLookupFile(t *testing.T) {
	backend := setupTestBackend(t)
	rec := sampleRecord()
	if err := backend.PutFile(rec); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}

	got, ok, err := backend.LookupFile(rec.Path, rec.Hash)
	if err != nil {
		t.Fatalf("LookupFile failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.ModulePath != rec.ModulePath {
		t.Errorf("module path: got %q, want %q", got.ModulePath, rec.ModulePath)
	}
	if len(got.Funcs) != 2 {
		t.Errorf("funcs: got %d, want 2", len(got.Funcs))
	}
	if len(got.Classes) != 1 || got.Classes[0].Name != "Point" || got.Classes[0].ClassID != 1 {
		t.Errorf("classes: got %+v", got.Classes)
	}
	if len(got.Globals) != 1 || !got.Globals[0].IsConst {
		t.Errorf("globals: got %+v", got.Globals)
	}
}

func TestLookupMissesOnHashMismatch(t *testing.T) {
	backend := setupTestBackend(t)
	rec := sampleRecord()
	if err := backend.PutFile(rec); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}

	_, ok, err := backend.LookupFile(rec.Path, "different-hash")
	if err != nil {
		t.Fatalf("LookupFile failed: %v", err)
	}
	if ok {
		t.Error("changed content must read as a cache miss")
	}
}

func TestLookupMissesOnUnknownPath(t *testing.T) {
	backend := setupTestBackend(t)
	_, ok, err := backend.LookupFile("file:///nowhere.h64", "h")
	if err != nil {
		t.Fatalf("LookupFile failed: %v", err)
	}
	if ok {
		t.Error("unknown path must read as a cache miss")
	}
}

func TestPutFileReplacesStaleRows(t *testing.T) {
	backend := setupTestBackend(t)
	rec := sampleRecord()
	if err := backend.PutFile(rec); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}

	updated := &FileRecord{
		Path:       rec.Path,
		Hash:       "def456",
		ModulePath: rec.ModulePath,
		Funcs:      []FuncSymbolRecord{{Name: "main", ArgCount: 0, FuncID: 5}},
	}
	if err := backend.PutFile(updated); err != nil {
		t.Fatalf("second PutFile failed: %v", err)
	}

	got, ok, err := backend.LookupFile(rec.Path, "def456")
	if err != nil {
		t.Fatalf("LookupFile failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit on the new hash")
	}
	if len(got.Funcs) != 1 {
		t.Errorf("stale function rows not replaced: got %d funcs, want 1", len(got.Funcs))
	}
	if len(got.Classes) != 0 || len(got.Globals) != 0 {
		t.Errorf("stale class/global rows not replaced: %+v / %+v", got.Classes, got.Globals)
	}
}

func TestDeleteEntriesForFile(t *testing.T) {
	backend := setupTestBackend(t)
	rec := sampleRecord()
	if err := backend.PutFile(rec); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}
	if err := backend.DeleteEntriesForFile(rec.Path); err != nil {
		t.Fatalf("DeleteEntriesForFile failed: %v", err)
	}

	_, ok, err := backend.LookupFile(rec.Path, rec.Hash)
	if err != nil {
		t.Fatalf("LookupFile failed: %v", err)
	}
	if ok {
		t.Error("deleted file must read as a cache miss")
	}
}

func TestProjectMetaRoundTrip(t *testing.T) {
	backend := setupTestBackend(t)

	val, err := backend.GetProjectMeta("missing")
	if err != nil {
		t.Fatalf("GetProjectMeta failed: %v", err)
	}
	if val != "" {
		t.Errorf("missing key: got %q, want empty", val)
	}

	if err := backend.SetProjectMeta("schema_version", "1"); err != nil {
		t.Fatalf("SetProjectMeta failed: %v", err)
	}
	val, err = backend.GetProjectMeta("schema_version")
	if err != nil {
		t.Fatalf("GetProjectMeta failed: %v", err)
	}
	if val != "1" {
		t.Errorf("schema_version: got %q, want %q", val, "1")
	}
}

func TestQueryAfterCloseFails(t *testing.T) {
	config := EmbeddedConfig{DataDir: t.TempDir(), Engine: "mem"}
	backend, err := NewEmbeddedBackend(config)
	if err != nil {
		t.Fatalf("NewEmbeddedBackend failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := backend.Query(context.Background(), `?[x] <- [[1]]`); err == nil {
		t.Error("query after close should fail")
	}
	if err := backend.Close(); err != nil {
		t.Errorf("double close should be a no-op, got %v", err)
	}
}
