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
	"github.com/kestrel-lang/kestrel/pkg/ast"
	"github.com/kestrel-lang/kestrel/pkg/object"
)

// resolveAgainstBuiltin implements the "not found in scope chain" fallback
// of spec.md §4.B.4: check the builtin module's func/class/globalvar name
// maps before giving up.
func (ir *identifierResolver) resolveAgainstBuiltin(f *ast.File, ref *ast.IdentifierRef) bool {
	builtin := ir.r.Program.Symbols.Modules[ir.r.Program.Symbols.BuiltinModuleIndex]

	if idx, ok := builtin.FuncNameToEntry[ref.Name]; ok {
		ref.ResolvedToBuiltin = true
		ref.Storage = object.NewStorageRef(object.GlobalFuncSlot, builtin.FuncSymbols[idx].GlobalID)
		return true
	}
	if idx, ok := builtin.ClassNameToEntry[ref.Name]; ok {
		ref.ResolvedToBuiltin = true
		ref.Storage = object.NewStorageRef(object.GlobalClassSlot, builtin.ClassSymbols[idx].GlobalID)
		return true
	}
	if idx, ok := builtin.GlobalVarNameToEntry[ref.Name]; ok {
		ref.ResolvedToBuiltin = true
		ref.Storage = object.NewStorageRef(object.GlobalVarSlot, builtin.GlobalVarSymbols[idx].GlobalID)
		return true
	}
	return false
}

// tryResolveImportChain implements spec.md §4.B.4's import-chain
// resolution: when the leading identifier of a member-access chain names an
// import, walk successive `.` accesses to assemble the dotted path, match
// it against the import statement's elements, and resolve the next access
// as an item in the imported module's global scope.
//
// It returns false (doing nothing) when v's leftmost identifier does not
// name an import, so the caller falls through to ordinary member-access
// handling.
func (ir *identifierResolver) tryResolveImportChain(f *ast.File, v *ast.BinaryOp, scope *ast.Scope) bool {
	leadName, leadIdent := leadingIdentifier(v)
	if leadIdent == nil {
		return false
	}
	def := scope.Lookup(leadName)
	if def == nil || def.DeclKind != ast.DeclImport {
		return false
	}

	chain, ok := flattenMemberChain(v, ImportChainLen)
	if !ok {
		ir.diag(f, "import chain exceeds %d elements", ImportChainLen)
		return true
	}

	imp, matchedLen := matchImport(def, chain)
	if imp == nil {
		ir.diag(f, "unmatched module reference %q", leadName)
		return true
	}
	if matchedLen >= len(chain) {
		ir.diag(f, "module %q used in a non-member context", leadName)
		return true
	}

	itemName := chain[matchedLen]
	itemRef, ok := lookupModuleItem(imp.Resolved, itemName)
	if !ok {
		ir.diag(f, "unknown item %q in module %q", itemName, leadName)
		return true
	}

	leadIdent.Storage = object.Unset
	def.EverUsed = true

	if itemIdent, ok := nthIdentifier(v, matchedLen); ok {
		itemIdent.Storage = itemRef
	}
	return true
}

// leadingIdentifier returns the leftmost *ast.IdentifierRef of a chain of
// nested OpMemberByIdentifier BinaryOps, or nil if the left spine is not
// entirely identifiers.
func leadingIdentifier(v *ast.BinaryOp) (string, *ast.IdentifierRef) {
	switch left := v.Left.(type) {
	case *ast.IdentifierRef:
		return left.Name, left
	case *ast.BinaryOp:
		if left.Op == ast.OpMemberByIdentifier {
			return leadingIdentifier(left)
		}
	}
	return "", nil
}

// flattenMemberChain turns a right-leaning or left-leaning chain of
// OpMemberByIdentifier nodes into an ordered list of element names, bounded
// by maxLen.
func flattenMemberChain(v *ast.BinaryOp, maxLen int) ([]string, bool) {
	var elems []string
	var walk func(n ast.Node) bool
	walk = func(n ast.Node) bool {
		switch t := n.(type) {
		case *ast.IdentifierRef:
			elems = append(elems, t.Name)
			return len(elems) <= maxLen
		case *ast.BinaryOp:
			if t.Op != ast.OpMemberByIdentifier {
				return true
			}
			if !walk(t.Left) {
				return false
			}
			return walk(t.Right)
		}
		return true
	}
	if !walk(v) {
		return nil, false
	}
	return elems, true
}

// nthIdentifier returns the (idx)-th identifier in chain order (0-based),
// matching flattenMemberChain's traversal order.
func nthIdentifier(v *ast.BinaryOp, idx int) (*ast.IdentifierRef, bool) {
	var found *ast.IdentifierRef
	count := -1
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		if found != nil {
			return
		}
		switch t := n.(type) {
		case *ast.IdentifierRef:
			count++
			if count == idx {
				found = t
			}
		case *ast.BinaryOp:
			if t.Op != ast.OpMemberByIdentifier {
				return
			}
			walk(t.Left)
			walk(t.Right)
		}
	}
	walk(v)
	return found, found != nil
}

// matchImport finds the import (the original statement, or one merged into
// def.Additional) whose Elements form the longest prefix of chain, and
// returns it alongside how many chain elements matched.
func matchImport(def *ast.ScopeDef, chain []string) (*ast.Import, int) {
	candidates := []*ast.Import{def.Declaration.(*ast.Import)}
	for _, add := range def.Additional {
		if imp, ok := add.Declaration.(*ast.Import); ok {
			candidates = append(candidates, imp)
		}
	}

	var best *ast.Import
	bestLen := -1
	for _, imp := range candidates {
		if len(imp.Elements) > len(chain) {
			continue
		}
		matched := true
		for i, e := range imp.Elements {
			if chain[i] != e {
				matched = false
				break
			}
		}
		if matched && len(imp.Elements) > bestLen {
			best = imp
			bestLen = len(imp.Elements)
		}
	}
	return best, bestLen
}

// lookupModuleItem resolves name against target's global scope (function,
// class, or global variable), returning a storage reference into the
// program object model.
func lookupModuleItem(target *ast.File, name string) (object.StorageRef, bool) {
	if target == nil || target.RootScope == nil {
		return object.Unset, false
	}
	def, ok := target.RootScope.Local(name)
	if !ok {
		return object.Unset, false
	}
	return storageRefOf(def.Declaration), true
}
