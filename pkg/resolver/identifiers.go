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
	"fmt"

	"github.com/kestrel-lang/kestrel/pkg/ast"
	"github.com/kestrel-lang/kestrel/pkg/object"
)

// identifierResolver runs spec.md §4.B.4's second visitor pass over one or
// more files reachable from an entry point.
type identifierResolver struct {
	r        *Resolver
	resolved map[string]bool // file URI -> resolveFile already ran

	nestedCount int64 // disambiguates nested/inline function lookup keys
}

func newIdentifierResolver(r *Resolver) *identifierResolver {
	return &identifierResolver{r: r, resolved: make(map[string]bool)}
}

func (ir *identifierResolver) diag(f *ast.File, format string, args ...any) {
	f.Diagnostics = append(f.Diagnostics, ast.Diagnostic{Message: fmt.Sprintf(format, args...)})
}

// resolveFile resolves every identifier reference reachable from f's
// top-level declarations, and recurses into every resolved import exactly
// once (tracked in ir.resolved, keyed by file URI and kept apart from the
// Resolver.visited set of the global-storage pass, so both passes run
// independently per file).
func (ir *identifierResolver) resolveFile(f *ast.File) {
	if ir.resolved[f.URI] {
		return
	}
	ir.resolved[f.URI] = true

	for _, imp := range f.Imports {
		if imp.Resolved != nil {
			ir.resolveFile(imp.Resolved)
		}
	}

	for _, n := range f.Body {
		ir.resolveTop(f, n)
	}
}

func (ir *identifierResolver) resolveTop(f *ast.File, n ast.Node) {
	switch v := n.(type) {
	case *ast.VarDef:
		if v.Initializer != nil {
			ir.resolveExpr(f, v.Initializer, f.RootScope, nil)
		}
	case *ast.ClassDef:
		ir.resolveBaseClass(f, v)
		for _, m := range v.Body {
			switch mv := m.(type) {
			case *ast.VarDef:
				if mv.Initializer != nil {
					ir.resolveExpr(f, mv.Initializer, f.RootScope, nil)
				}
			case *ast.FuncDef:
				ir.resolveFunc(f, mv, f.RootScope)
			}
		}
	case *ast.FuncDef:
		ir.resolveFunc(f, v, f.RootScope)
	}
}

// resolveBaseClass links a class's `extends` name to its base class id:
// first against the file's scope chain, then against the builtin module.
func (ir *identifierResolver) resolveBaseClass(f *ast.File, c *ast.ClassDef) {
	if c.ExtendsName == "" || !c.Storage.Set {
		return
	}
	if def := f.RootScope.Lookup(c.ExtendsName); def != nil {
		base, ok := def.Declaration.(*ast.ClassDef)
		if !ok || !base.Storage.Set {
			ir.diag(f, "%q extends %q, which is not a class", c.Name, c.ExtendsName)
			return
		}
		def.EverUsed = true
		ir.r.Program.Classes[c.Storage.ID].BaseClassID = base.Storage.ID
		return
	}
	builtin := ir.r.Program.Symbols.Modules[ir.r.Program.Symbols.BuiltinModuleIndex]
	if idx, ok := builtin.ClassNameToEntry[c.ExtendsName]; ok {
		ir.r.Program.Classes[c.Storage.ID].BaseClassID = builtin.ClassSymbols[idx].GlobalID
		return
	}
	ir.diag(f, "unknown base class %q", c.ExtendsName)
}

func (ir *identifierResolver) resolveFunc(f *ast.File, fn *ast.FuncDef, outer *ast.Scope) {
	// A nested named function was not reached by the global-storage pass
	// (which stops at file and class scope); register it on first visit so
	// lowering has a function id for it.
	if !fn.Storage.Set {
		ir.nestedCount++
		name := fmt.Sprintf("%s$%d", fn.Name, ir.nestedCount)
		funcID, err := ir.r.Program.RegisterSourceFunction(
			name, f.ModulePath, f.Library, -1,
			len(fn.Args), kwargNamesOf(fn.Args), fn.LastArgIsMultiArg, false, f.URI)
		if err != nil {
			ir.diag(f, "nested function %q: %s", fn.Name, err.Error())
		} else {
			fn.FunctionID = funcID
			fn.Storage = object.NewStorageRef(object.GlobalFuncSlot, funcID)
		}
	}

	if fn.FuncScope == nil {
		fn.FuncScope = ast.NewScope(outer, fn)
		for _, a := range fn.Args {
			fn.FuncScope.Declare(a.Name, fn, ast.DeclFuncParam)
		}
	}
	for _, n := range fn.Body {
		ir.resolveStmt(f, n, fn.FuncScope)
	}
}

func (ir *identifierResolver) resolveInlineFunc(f *ast.File, fn *ast.InlineFuncDef, outer *ast.Scope) {
	if !fn.Storage.Set {
		ir.nestedCount++
		name := fmt.Sprintf("$$inline%d", ir.nestedCount)
		funcID, err := ir.r.Program.RegisterSourceFunction(
			name, f.ModulePath, f.Library, -1,
			len(fn.Args), kwargNamesOf(fn.Args), fn.LastArgIsMultiArg, false, f.URI)
		if err != nil {
			ir.diag(f, "inline function: %s", err.Error())
		} else {
			fn.FunctionID = funcID
			fn.Storage = object.NewStorageRef(object.GlobalFuncSlot, funcID)
		}
	}

	if fn.FuncScope == nil {
		fn.FuncScope = ast.NewScope(outer, fn)
		for _, a := range fn.Args {
			fn.FuncScope.Declare(a.Name, fn, ast.DeclFuncParam)
		}
	}
	for _, n := range fn.Body {
		ir.resolveStmt(f, n, fn.FuncScope)
	}
}

func kwargNamesOf(args []ast.Arg) []string {
	var names []string
	for _, a := range args {
		if a.HasDefault {
			names = append(names, a.Name)
		}
	}
	return names
}

func (ir *identifierResolver) resolveStmt(f *ast.File, n ast.Node, scope *ast.Scope) {
	switch v := n.(type) {
	case *ast.VarDef:
		if v.Initializer != nil {
			ir.resolveExpr(f, v.Initializer, scope, nil)
		}
		scope.Declare(v.Name, v, ast.DeclVar)
	case *ast.ForStmt:
		ir.resolveExpr(f, v.Iterated, scope, nil)
		v.LoopScope = ast.NewScope(scope, v)
		v.LoopScope.Declare(v.IteratorName, v, ast.DeclForIterator)
		for _, body := range v.Body {
			ir.resolveStmt(f, body, v.LoopScope)
		}
	case *ast.FuncDef:
		scope.Declare(v.Name, v, ast.DeclFunc)
		ir.resolveFunc(f, v, scope)
	case *ast.InlineFuncDef:
		ir.resolveInlineFunc(f, v, scope)
	case *ast.Block:
		for _, body := range v.Body {
			ir.resolveStmt(f, body, scope)
		}
	case *ast.ReturnStmt:
		if v.Value != nil {
			ir.resolveExpr(f, v.Value, scope, nil)
		}
	default:
		ir.resolveExpr(f, n, scope, nil)
	}
}

// resolveExpr resolves identifier references within an expression subtree.
// parentMember, when non-nil, is the BinaryOp whose Right this node is the
// right-hand side of — used to suppress scope-chain lookup for dotted
// member-access identifiers (spec.md §4.B.4).
func (ir *identifierResolver) resolveExpr(f *ast.File, n ast.Node, scope *ast.Scope, parentMember *ast.BinaryOp) {
	switch v := n.(type) {
	case *ast.IdentifierRef:
		if parentMember != nil && parentMember.Right == ast.Node(v) && parentMember.Op == ast.OpMemberByIdentifier {
			ir.r.Program.Symbols.InternMemberName(v.Name)
			return
		}
		ir.resolveIdentifier(f, v, scope)
	case *ast.BinaryOp:
		if v.Op == ast.OpMemberByIdentifier {
			if ir.tryResolveImportChain(f, v, scope) {
				return
			}
			ir.resolveExpr(f, v.Left, scope, nil)
			ir.resolveExpr(f, v.Right, scope, v)
			return
		}
		ir.resolveExpr(f, v.Left, scope, nil)
		ir.resolveExpr(f, v.Right, scope, nil)
	case *ast.Call:
		ir.resolveExpr(f, v.Callee, scope, nil)
		for _, a := range v.Args {
			ir.resolveExpr(f, a, scope, nil)
		}
		for _, name := range v.KwargNames {
			ir.r.Program.Symbols.InternMemberName(name)
		}
	case *ast.InlineFuncDef:
		ir.resolveInlineFunc(f, v, scope)
	case *ast.Literal:
		// Nothing to resolve.
	}
}

// resolveIdentifier implements spec.md §4.B.4's main lookup branch.
func (ir *identifierResolver) resolveIdentifier(f *ast.File, ref *ast.IdentifierRef, scope *ast.Scope) {
	if ref.Name == "self" || ref.Name == "base" {
		inMethod := false
		if encl := scope.EnclosingFunc(); encl != nil {
			fd, ok := encl.Owner.(*ast.FuncDef)
			inMethod = ok && fd.HasSelfArg
		}
		if !inMethod {
			ir.diag(f, "%q used outside a class method", ref.Name)
		}
		return
	}

	def := scope.Lookup(ref.Name)
	if def == nil {
		if ok := ir.resolveAgainstBuiltin(f, ref); !ok {
			ir.diag(f, "unknown identifier %q", ref.Name)
		}
		return
	}

	if def.DeclKind == ast.DeclImport {
		// Used bare (not as the left side of a member access); nothing
		// further to resolve here, but mark it used.
		def.EverUsed = true
		return
	}

	def.EverUsed = true
	ir.trackClosureCapture(scope, def)

	ref.Def = def
	if def.DeclKind != ast.DeclFuncParam {
		ref.Storage = storageRefOf(def.Declaration)
	}
}

// storageRefOf extracts the StorageRef a declaration node carries, or the
// zero (unset) ref for declarations with no global storage of their own —
// function parameters and for-loop iterators get LOCAL_SLOT only once the
// out-of-scope local-variable assignment pass runs (spec.md §4.B.5 step 4).
func storageRefOf(n ast.Node) object.StorageRef {
	switch v := n.(type) {
	case *ast.VarDef:
		return v.Storage
	case *ast.ClassDef:
		return v.Storage
	case *ast.FuncDef:
		return v.Storage
	default:
		return object.Unset
	}
}

// trackClosureCapture implements spec.md §4.B.4's closure-bound bookkeeping:
// if the reference sits inside a nested function relative to the
// declaration site and the declaration is a local variable, mark it
// closure_bound and record it on every intermediate function's
// closure-bound-variables list.
func (ir *identifierResolver) trackClosureCapture(useScope *ast.Scope, def *ast.ScopeDef) {
	if def.DeclKind != ast.DeclVar && def.DeclKind != ast.DeclForIterator {
		return
	}
	declFunc := def.ScopeOwner.EnclosingFunc()
	useFunc := useScope.EnclosingFunc()
	if useFunc == declFunc {
		return
	}

	def.ClosureBound = true
	cur := useFunc
	for cur != nil && cur != declFunc {
		appendClosureBoundVar(cur.Owner, def)
		if cur.Parent == nil {
			break
		}
		cur = cur.Parent.EnclosingFunc()
	}
}

func appendClosureBoundVar(owner ast.Node, def *ast.ScopeDef) {
	switch fn := owner.(type) {
	case *ast.FuncDef:
		fn.ClosureBoundVars = append(fn.ClosureBoundVars, def)
	case *ast.InlineFuncDef:
		fn.ClosureBoundVars = append(fn.ClosureBoundVars, def)
	}
}
