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

package parser

import (
	"testing"

	"github.com/kestrel-lang/kestrel/pkg/ast"
)

func TestParseImportAndMain(t *testing.T) {
	src := "import b\nfunc main { b.f() }\n"
	f, err := Parse("file:///a.h64", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(f.Imports) != 1 || len(f.Imports[0].Elements) != 1 || f.Imports[0].Elements[0] != "b" {
		t.Fatalf("imports: got %+v", f.Imports)
	}
	if len(f.Body) != 1 {
		t.Fatalf("body: got %d nodes, want 1", len(f.Body))
	}
	fn, ok := f.Body[0].(*ast.FuncDef)
	if !ok || fn.Name != "main" {
		t.Fatalf("body[0]: got %T, want *FuncDef main", f.Body[0])
	}
	if len(fn.Body) != 1 {
		t.Fatalf("main body: got %d statements, want 1", len(fn.Body))
	}
	call, ok := fn.Body[0].(*ast.Call)
	if !ok {
		t.Fatalf("main statement: got %T, want *Call", fn.Body[0])
	}
	member, ok := call.Callee.(*ast.BinaryOp)
	if !ok || member.Op != ast.OpMemberByIdentifier {
		t.Fatalf("callee: got %T, want member access", call.Callee)
	}
	left, ok := member.Left.(*ast.IdentifierRef)
	if !ok || left.Name != "b" {
		t.Fatalf("member left: got %+v", member.Left)
	}
	right, ok := member.Right.(*ast.IdentifierRef)
	if !ok || right.Name != "f" {
		t.Fatalf("member right: got %+v", member.Right)
	}
}

func TestParseBareReturn(t *testing.T) {
	f, err := Parse("file:///b.h64", []byte("func f { return }"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fn := f.Body[0].(*ast.FuncDef)
	ret, ok := fn.Body[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("statement: got %T, want *ReturnStmt", fn.Body[0])
	}
	if ret.Value != nil {
		t.Errorf("bare return should carry no value, got %+v", ret.Value)
	}
}

func TestParseClassWithMembers(t *testing.T) {
	src := `
class Point extends Shape {
	var x = 1
	var y
	func dist(other) { return other }
}
`
	f, err := Parse("file:///c.h64", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cls := f.Body[0].(*ast.ClassDef)
	if cls.Name != "Point" || cls.ExtendsName != "Shape" {
		t.Fatalf("class header: %+v", cls)
	}
	if len(cls.Body) != 3 {
		t.Fatalf("class body: got %d members, want 3", len(cls.Body))
	}
	x := cls.Body[0].(*ast.VarDef)
	if x.IsTrivialInitializer() {
		t.Errorf("x = 1 should be a non-trivial initializer")
	}
	y := cls.Body[1].(*ast.VarDef)
	if !y.IsTrivialInitializer() {
		t.Errorf("bare y should be a trivial initializer")
	}
	m := cls.Body[2].(*ast.FuncDef)
	if !m.HasSelfArg {
		t.Errorf("class method should have a self argument")
	}
	if len(m.Args) != 1 || m.Args[0].Name != "other" {
		t.Errorf("method args: %+v", m.Args)
	}
}

func TestParseKwargsAndDefaults(t *testing.T) {
	src := "func g(a, b = 2) { return a }\nfunc main { g(1, b = 3) }"
	f, err := Parse("file:///d.h64", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	g := f.Body[0].(*ast.FuncDef)
	if len(g.Args) != 2 || g.Args[0].HasDefault || !g.Args[1].HasDefault {
		t.Fatalf("g args: %+v", g.Args)
	}
	call := f.Body[1].(*ast.FuncDef).Body[0].(*ast.Call)
	if len(call.Args) != 2 {
		t.Fatalf("call args: got %d, want 2", len(call.Args))
	}
	if len(call.KwargNames) != 1 || call.KwargNames[0] != "b" {
		t.Fatalf("kwarg names: %+v", call.KwargNames)
	}
}

func TestParsePrecedence(t *testing.T) {
	f, err := Parse("file:///e.h64", []byte("var v = 1 + 2 * 3"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v := f.Body[0].(*ast.VarDef)
	add := v.Initializer.(*ast.BinaryOp)
	if add.Op != ast.OpAdd {
		t.Fatalf("top op: got %v, want add", add.Op)
	}
	mul, ok := add.Right.(*ast.BinaryOp)
	if !ok || mul.Op != ast.OpMultiply {
		t.Fatalf("right op: got %+v, want multiply", add.Right)
	}
}

func TestParseMalformedStringFails(t *testing.T) {
	_, err := Parse("file:///f.h64", []byte("var s = \"\xc3\xc3\""))
	if err == nil {
		t.Fatal("malformed UTF-8 string literal should fail to parse")
	}
}

func TestParseInlineFunc(t *testing.T) {
	f, err := Parse("file:///g.h64", []byte("var cb = func (x) { return x }"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v := f.Body[0].(*ast.VarDef)
	fn, ok := v.Initializer.(*ast.InlineFuncDef)
	if !ok {
		t.Fatalf("initializer: got %T, want *InlineFuncDef", v.Initializer)
	}
	if len(fn.Args) != 1 || fn.Args[0].Name != "x" {
		t.Errorf("inline func args: %+v", fn.Args)
	}
}
