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

package ast

import "testing"

func TestScope_LookupWalksParentChain(t *testing.T) {
	file := &File{}
	root := NewScope(nil, file)
	root.Declare("x", &VarDef{Name: "x"}, DeclVar)

	fn := &FuncDef{Name: "f"}
	inner := NewScope(root, fn)

	def := inner.Lookup("x")
	if def == nil {
		t.Fatalf("expected to find x via parent chain")
	}
	if def.Identifier != "x" {
		t.Errorf("got identifier %q, want x", def.Identifier)
	}
}

func TestScope_LookupMissingReturnsNil(t *testing.T) {
	root := NewScope(nil, &File{})
	if def := root.Lookup("missing"); def != nil {
		t.Errorf("expected nil, got %+v", def)
	}
}

func TestScope_DeclareTwiceMergesIntoAdditional(t *testing.T) {
	root := NewScope(nil, &File{})
	first := root.Declare("a", &Import{}, DeclImport)
	root.Declare("a", &Import{}, DeclImport)

	def, ok := root.Local("a")
	if !ok {
		t.Fatalf("expected a to be declared")
	}
	if def != first {
		t.Fatalf("expected the first ScopeDef to remain canonical")
	}
	if len(def.Additional) != 1 {
		t.Errorf("got %d additional defs, want 1", len(def.Additional))
	}
}

func TestScope_EnclosingFunc(t *testing.T) {
	file := &File{}
	root := NewScope(nil, file)
	fn := &FuncDef{Name: "f"}
	fnScope := NewScope(root, fn)
	block := NewScope(fnScope, &Block{})

	found := block.EnclosingFunc()
	if found == nil || found.Owner != fn {
		t.Fatalf("expected to find enclosing func scope owned by fn")
	}

	if root.EnclosingFunc() != nil {
		t.Errorf("file-level scope should have no enclosing func")
	}
}

func TestVarDef_IsTrivialInitializer(t *testing.T) {
	cases := []struct {
		name string
		v    *VarDef
		want bool
	}{
		{"absent", &VarDef{}, true},
		{"none literal", &VarDef{Initializer: &Literal{IsNone: true}}, true},
		{"int literal", &VarDef{Initializer: &Literal{IntValue: 3}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.v.IsTrivialInitializer(); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
