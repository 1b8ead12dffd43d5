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

package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrel-lang/kestrel/pkg/ast"
	"github.com/kestrel-lang/kestrel/pkg/loader"
	"github.com/kestrel-lang/kestrel/pkg/object"
)

func newTestProject(t *testing.T) (root string, ld *loader.Loader, files map[string]*ast.File) {
	t.Helper()
	root = t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, loader.ProjectMarkerDir), 0o755); err != nil {
		t.Fatal(err)
	}
	files = make(map[string]*ast.File)
	ld = loader.New(func(uri string, src []byte) (*ast.File, error) {
		if f, ok := files[uri]; ok {
			return f, nil
		}
		return &ast.File{}, nil
	})
	return root, ld, files
}

func writeSourceFile(t *testing.T, root, rel string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	return "file://" + path
}

func TestResolveAST_RegistersGlobalVarAndFunc(t *testing.T) {
	root, ld, files := newTestProject(t)
	uri := writeSourceFile(t, root, "main.h64")

	counter := &ast.VarDef{Name: "counter"}
	mainFn := &ast.FuncDef{Name: "main"}
	entry := &ast.File{Body: []ast.Node{counter, mainFn}, URI: uri}
	files[uri] = entry

	p := object.NewProgram()
	r := New(p, ld)

	if err := r.ResolveAST(entry, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if entry.ModulePath != "main" {
		t.Errorf("got module path %q, want main", entry.ModulePath)
	}
	if !counter.Storage.Set || counter.Storage.Kind != object.GlobalVarSlot {
		t.Errorf("expected counter to get a GlobalVarSlot storage ref, got %+v", counter.Storage)
	}
	if p.MainFuncID != mainFn.FunctionID {
		t.Errorf("MainFuncID = %d, want %d", p.MainFuncID, mainFn.FunctionID)
	}
	if len(entry.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %+v", entry.Diagnostics)
	}
}

func TestResolveAST_DuplicateMainIsDiagnosed(t *testing.T) {
	root, ld, files := newTestProject(t)
	uri := writeSourceFile(t, root, "main.h64")

	fn1 := &ast.FuncDef{Name: "main"}
	fn2 := &ast.FuncDef{Name: "main"}
	entry := &ast.File{Body: []ast.Node{fn1, fn2}, URI: uri}
	files[uri] = entry

	r := New(object.NewProgram(), ld)
	if err := r.ResolveAST(entry, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entry.Diagnostics) == 0 {
		t.Errorf("expected a diagnostic for duplicate main, got none")
	}
}

func TestResolveAST_MissingMainIsDiagnosed(t *testing.T) {
	root, ld, files := newTestProject(t)
	uri := writeSourceFile(t, root, "main.h64")

	entry := &ast.File{Body: nil, URI: uri}
	files[uri] = entry

	r := New(object.NewProgram(), ld)
	if err := r.ResolveAST(entry, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entry.Diagnostics) != 1 || entry.Diagnostics[0].Message != "missing main" {
		t.Errorf("got diagnostics %+v, want exactly [missing main]", entry.Diagnostics)
	}
}

func TestResolveAST_IdentifierResolvesToGlobalVar(t *testing.T) {
	root, ld, files := newTestProject(t)
	uri := writeSourceFile(t, root, "main.h64")

	counter := &ast.VarDef{Name: "counter"}
	ref := &ast.IdentifierRef{Name: "counter"}
	mainFn := &ast.FuncDef{Name: "main", Body: []ast.Node{ref}}
	entry := &ast.File{Body: []ast.Node{counter, mainFn}, URI: uri}
	files[uri] = entry

	r := New(object.NewProgram(), ld)
	if err := r.ResolveAST(entry, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !ref.Storage.Set || ref.Storage != counter.Storage {
		t.Errorf("expected identifier ref to resolve to counter's storage ref, got %+v vs %+v", ref.Storage, counter.Storage)
	}
}

func TestResolveAST_UnknownIdentifierDiagnosed(t *testing.T) {
	root, ld, files := newTestProject(t)
	uri := writeSourceFile(t, root, "main.h64")

	ref := &ast.IdentifierRef{Name: "doesNotExist"}
	mainFn := &ast.FuncDef{Name: "main", Body: []ast.Node{ref}}
	entry := &ast.File{Body: []ast.Node{mainFn}, URI: uri}
	files[uri] = entry

	r := New(object.NewProgram(), ld)
	if err := r.ResolveAST(entry, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, d := range entry.Diagnostics {
		if d.Message == `unknown identifier "doesNotExist"` {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unknown-identifier diagnostic, got %+v", entry.Diagnostics)
	}
}

func TestResolveAST_SelfOutsideMethodDiagnosed(t *testing.T) {
	root, ld, files := newTestProject(t)
	uri := writeSourceFile(t, root, "main.h64")

	ref := &ast.IdentifierRef{Name: "self"}
	mainFn := &ast.FuncDef{Name: "main", Body: []ast.Node{ref}}
	entry := &ast.File{Body: []ast.Node{mainFn}, URI: uri}
	files[uri] = entry

	r := New(object.NewProgram(), ld)
	if err := r.ResolveAST(entry, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, d := range entry.Diagnostics {
		if d.Message == `"self" used outside a class method` {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a self-outside-method diagnostic, got %+v", entry.Diagnostics)
	}
}

func TestResolveAST_ClosureCapturesOuterLocal(t *testing.T) {
	root, ld, files := newTestProject(t)
	uri := writeSourceFile(t, root, "main.h64")

	localDef := &ast.VarDef{Name: "total"}
	captureRef := &ast.IdentifierRef{Name: "total"}
	inner := &ast.InlineFuncDef{Body: []ast.Node{captureRef}}
	mainFn := &ast.FuncDef{Name: "main", Body: []ast.Node{localDef, inner}}
	entry := &ast.File{Body: []ast.Node{mainFn}, URI: uri}
	files[uri] = entry

	r := New(object.NewProgram(), ld)
	if err := r.ResolveAST(entry, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	localScopeDef, ok := mainFn.FuncScope.Local("total")
	if !ok {
		t.Fatalf("expected total to be declared in main's scope")
	}
	if !localScopeDef.ClosureBound {
		t.Errorf("expected total to be marked closure_bound")
	}
	if len(inner.ClosureBoundVars) != 1 || inner.ClosureBoundVars[0] != localScopeDef {
		t.Errorf("expected the inner closure to record total in its closure-bound vars list, got %+v", inner.ClosureBoundVars)
	}
}

func TestResolveAST_ImportChainResolvesToImportedGlobal(t *testing.T) {
	root, ld, files := newTestProject(t)
	mainURI := writeSourceFile(t, root, "main.h64")
	utilURI := writeSourceFile(t, root, "util.h64")

	utilGlobal := &ast.VarDef{Name: "version"}
	utilFile := &ast.File{Body: []ast.Node{utilGlobal}, URI: utilURI}
	files[utilURI] = utilFile

	imp := &ast.Import{Elements: []string{"util"}}
	memberAccess := &ast.BinaryOp{
		Op:    ast.OpMemberByIdentifier,
		Left:  &ast.IdentifierRef{Name: "util"},
		Right: &ast.IdentifierRef{Name: "version"},
	}
	mainFn := &ast.FuncDef{Name: "main", Body: []ast.Node{memberAccess}}
	mainFile := &ast.File{Imports: []*ast.Import{imp}, Body: []ast.Node{mainFn}, URI: mainURI}
	files[mainURI] = mainFile

	r := New(object.NewProgram(), ld)
	if err := r.ResolveAST(mainFile, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rhs := memberAccess.Right.(*ast.IdentifierRef)
	if !rhs.Storage.Set || rhs.Storage != utilGlobal.Storage {
		t.Errorf("expected member access to resolve to util.version's storage, got %+v vs %+v", rhs.Storage, utilGlobal.Storage)
	}
}
