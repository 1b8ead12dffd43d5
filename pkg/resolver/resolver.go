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

// Package resolver implements the scope & identifier resolver: it assigns
// every AST's module path, registers every global declaration in the
// program object model, builds the lexical scope tree, and resolves
// identifier references (including dotted import access and closure
// capture bookkeeping) against it.
package resolver

import (
	"fmt"

	"github.com/kestrel-lang/kestrel/pkg/ast"
	"github.com/kestrel-lang/kestrel/pkg/loader"
	"github.com/kestrel-lang/kestrel/pkg/object"
)

// ImportChainLen bounds the length of a dotted member-access chain walked
// while resolving an import reference (spec.md §4.B.4).
const ImportChainLen = 16

// Resolver ties together the program object model, the project loader, and
// the per-file scope trees it builds.
type Resolver struct {
	Program *object.Program
	Loader  *loader.Loader

	visited map[string]bool // file URI -> build_global_storage already ran
}

// New creates a Resolver over an existing program and loader.
func New(program *object.Program, ld *loader.Loader) *Resolver {
	return &Resolver{Program: program, Loader: ld, visited: make(map[string]bool)}
}

// ResolveAST runs the full pipeline from an entry file, per spec.md §4.B.5.
func (r *Resolver) ResolveAST(entry *ast.File, extractMain bool) error {
	if err := r.assignModulePath(entry); err != nil {
		return err
	}
	if err := r.buildGlobalStorage(entry, extractMain); err != nil {
		return err
	}
	if extractMain && r.Program.MainFuncID < 0 {
		entry.Diagnostics = append(entry.Diagnostics, ast.Diagnostic{Message: "missing main"})
	}

	ir := newIdentifierResolver(r)
	ir.resolveFile(entry)

	return nil
}

func (r *Resolver) assignModulePath(f *ast.File) error {
	if f.ModulePath != "" {
		return nil
	}
	modulePath, library, err := r.Loader.ModulePath(f.URI)
	if err != nil {
		return err
	}
	f.ModulePath = modulePath
	f.Library = library
	return nil
}

// buildGlobalStorage implements spec.md §4.B.2, recursing into every
// imported AST. extractMain is turned off on recursion: only the entry
// file's top-level "main" function is eligible to become the program entry
// point.
func (r *Resolver) buildGlobalStorage(f *ast.File, extractMain bool) error {
	if r.visited[f.URI] {
		return nil
	}
	r.visited[f.URI] = true

	if f.RootScope == nil {
		f.RootScope = ast.NewScope(nil, f)
	}

	for _, imp := range f.Imports {
		uri, err := r.Loader.Resolve(f.URI, imp.Elements, imp.Library)
		if err != nil {
			f.Diagnostics = append(f.Diagnostics, ast.Diagnostic{Message: err.Error()})
			continue
		}
		target, err := r.Loader.GetAST(uri)
		if err != nil {
			f.Diagnostics = append(f.Diagnostics, ast.Diagnostic{Message: err.Error()})
			continue
		}
		if err := r.assignModulePath(target); err != nil {
			f.Diagnostics = append(f.Diagnostics, ast.Diagnostic{Message: err.Error()})
			continue
		}
		imp.Resolved = target

		alias := imp.Alias
		if alias == "" {
			alias = imp.Elements[0]
		}
		f.RootScope.Declare(alias, imp, ast.DeclImport)

		if err := r.buildGlobalStorage(target, false); err != nil {
			f.Diagnostics = append(f.Diagnostics, ast.Diagnostic{Message: err.Error()})
		}
	}

	for _, n := range f.Body {
		r.walkGlobalScope(f, n, f.RootScope, extractMain)
	}
	return nil
}

// walkGlobalScope visits one top-level declaration of a file, declaring it
// in scope and computing its storage per spec.md §4.B.3.
func (r *Resolver) walkGlobalScope(f *ast.File, n ast.Node, scope *ast.Scope, extractMain bool) {
	switch v := n.(type) {
	case *ast.VarDef:
		if err := r.computeVarStorage(f, v, nil); err != nil {
			f.Diagnostics = append(f.Diagnostics, ast.Diagnostic{Message: err.Error()})
		}
		scope.Declare(v.Name, v, ast.DeclVar)
	case *ast.ClassDef:
		if err := r.computeClassStorage(f, v); err != nil {
			f.Diagnostics = append(f.Diagnostics, ast.Diagnostic{Message: err.Error()})
		}
		scope.Declare(v.Name, v, ast.DeclClass)
		r.walkClassBody(f, v)
	case *ast.FuncDef:
		if err := r.computeFuncStorage(f, v, -1, extractMain); err != nil {
			f.Diagnostics = append(f.Diagnostics, ast.Diagnostic{Message: err.Error()})
		}
		scope.Declare(v.Name, v, ast.DeclFunc)
	}
}

func (r *Resolver) walkClassBody(f *ast.File, c *ast.ClassDef) {
	for _, n := range c.Body {
		switch v := n.(type) {
		case *ast.VarDef:
			if err := r.computeClassVarStorage(f, c, v); err != nil {
				f.Diagnostics = append(f.Diagnostics, ast.Diagnostic{Message: err.Error()})
			}
		case *ast.FuncDef:
			if err := r.computeFuncStorage(f, v, classIDOf(c), false); err != nil {
				f.Diagnostics = append(f.Diagnostics, ast.Diagnostic{Message: err.Error()})
			}
		}
	}
}

func classIDOf(c *ast.ClassDef) int64 {
	if !c.Storage.Set {
		return -1
	}
	return c.Storage.ID
}

// computeVarStorage implements the "global variable" case of
// compute_item_storage (spec.md §4.B.3). owningClass is nil at file scope.
func (r *Resolver) computeVarStorage(f *ast.File, v *ast.VarDef, owningClass *ast.ClassDef) error {
	if v.Storage.Set {
		return nil
	}
	globalID, err := r.Program.AddGlobalVar(v.Name, f.ModulePath, f.Library, v.IsConst, f.URI)
	if err != nil {
		return fmt.Errorf("compute_item_storage: %w", err)
	}
	v.Storage = object.NewStorageRef(object.GlobalVarSlot, globalID)
	return nil
}

func (r *Resolver) computeClassStorage(f *ast.File, c *ast.ClassDef) error {
	if c.Storage.Set {
		return nil
	}
	classID, err := r.Program.AddClass(c.Name, f.URI, f.ModulePath, f.Library)
	if err != nil {
		return fmt.Errorf("compute_item_storage: %w", err)
	}
	c.Storage = object.NewStorageRef(object.GlobalClassSlot, classID)
	return nil
}

// computeClassVarStorage implements the "class-member variable" case,
// walking upward to the enclosing class first if its storage is not yet
// set (spec.md §4.B.3).
func (r *Resolver) computeClassVarStorage(f *ast.File, c *ast.ClassDef, v *ast.VarDef) error {
	if err := r.computeClassStorage(f, c); err != nil {
		return err
	}
	entryIdx, err := r.Program.RegisterClassVariable(c.Storage.ID, v.Name)
	if err != nil {
		return fmt.Errorf("compute_item_storage: %w", err)
	}
	v.Storage = object.NewStorageRef(object.GlobalVarSlot, entryIdx)

	if !v.IsTrivialInitializer() && c.VarInitFunc == nil {
		varInit := &ast.FuncDef{Name: "$$varinit", FunctionID: -1}
		funcID, err := r.Program.RegisterSourceFunction(varInit.Name, f.ModulePath, f.Library, c.Storage.ID, 0, nil, false, true, "")
		if err != nil {
			return fmt.Errorf("compute_item_storage: auto var-init: %w", err)
		}
		varInit.FunctionID = funcID
		varInit.Storage = object.NewStorageRef(object.GlobalFuncSlot, funcID)
		c.VarInitFunc = varInit
		r.Program.Classes[c.Storage.ID].HasVarInitFunc = true
	}
	return nil
}

// computeFuncStorage implements the "function" case: classID is -1 for a
// free function. extractMain requests main-function detection.
func (r *Resolver) computeFuncStorage(f *ast.File, fn *ast.FuncDef, classID int64, extractMain bool) error {
	if fn.Storage.Set {
		return nil
	}

	var kwargNames []string
	for _, a := range fn.Args {
		if a.HasDefault {
			kwargNames = append(kwargNames, a.Name)
		}
	}

	funcID, err := r.Program.RegisterSourceFunction(fn.Name, f.ModulePath, f.Library, classID, len(fn.Args), kwargNames, fn.LastArgIsMultiArg, fn.HasSelfArg, f.URI)
	if err != nil {
		return fmt.Errorf("compute_item_storage: %w", err)
	}
	fn.FunctionID = funcID
	fn.Storage = object.NewStorageRef(object.GlobalFuncSlot, funcID)

	if extractMain && classID < 0 && fn.Name == "main" {
		if r.Program.MainFuncID >= 0 {
			return fmt.Errorf("compute_item_storage: duplicate main function")
		}
		r.Program.MainFuncID = funcID
	}
	return nil
}
