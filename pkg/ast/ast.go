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

// Package ast defines the syntax tree produced by pkg/parser and consumed by
// pkg/resolver. Every node embeds Base, which carries the cross-reference
// fields the resolver fills in: a StorageRef once an item is registered in
// the program object model, and a Scope pointer once the node's enclosing
// lexical scope is known.
package ast

import "github.com/kestrel-lang/kestrel/pkg/object"

// Kind tags the concrete type of a Node, used by visitors that would
// otherwise need a type switch at every call site.
type Kind int

const (
	KindFile Kind = iota
	KindImport
	KindVarDef
	KindClassDef
	KindFuncDef
	KindInlineFuncDef
	KindForStmt
	KindIdentifierRef
	KindLiteral
	KindBinaryOp
	KindCall
	KindBlock
	KindReturn
)

// Node is implemented by every AST node.
type Node interface {
	Kind() Kind
	base() *Base
}

// Base is embedded in every node.
type Base struct {
	Storage object.StorageRef
	Scope   *Scope
	Parent  Node
}

func (b *Base) base() *Base { return b }

// SetParent records the parent back-reference on a node. Parent links are
// non-owning and must be reconstructed by whoever rebuilds a subtree.
func SetParent(child, parent Node) {
	if child != nil {
		child.base().Parent = parent
	}
}

// File is the root node of one parsed source file.
type File struct {
	Base

	URI        string // normalized file:// uri, used as the debug-symbol key
	ModulePath string // empty until pkg/resolver's module-path derivation runs
	Library    string

	Imports   []*Import
	Body      []Node
	RootScope *Scope

	Diagnostics []Diagnostic
}

func (f *File) Kind() Kind { return KindFile }

// Diagnostic is a non-fatal resolution error attached to a File, matching
// spec.md §4.B.2's "errors become diagnostic messages ... they do not halt
// processing of the remainder".
type Diagnostic struct {
	Message string
	Fatal   bool
}

// Import is an `import a.b.c as alias` (or unaliased) statement.
type Import struct {
	Base

	Elements []string // dotted path components, e.g. ["a", "b", "c"]
	Library  string   // optional "from" library name
	Alias    string   // empty if no "as" clause; default binding is Elements[0]

	Resolved *File // set once the target AST has been located and resolved
}

func (i *Import) Kind() Kind { return KindImport }

// VarDef is `var name = expr` or `const name = expr`.
type VarDef struct {
	Base

	Name        string
	IsConst     bool
	Initializer Node // nil if absent
}

func (v *VarDef) Kind() Kind { return KindVarDef }

// IsTrivialInitializer reports whether the initializer is absent or the
// literal none, per spec.md §4.B.3's "if the initializer is non-trivial".
func (v *VarDef) IsTrivialInitializer() bool {
	if v.Initializer == nil {
		return true
	}
	lit, ok := v.Initializer.(*Literal)
	return ok && lit.IsNone
}

// ClassDef is `class Name extends Base { ... }`.
type ClassDef struct {
	Base

	Name        string
	ExtendsName string // empty if no base class
	Body        []Node
	VarInitFunc *FuncDef // synthesized lazily, see spec.md §4.B.3
}

func (c *ClassDef) Kind() Kind { return KindClassDef }

// Arg is one formal parameter.
type Arg struct {
	Name         string
	HasDefault   bool
	DefaultValue Node
}

// FuncDef is a named function, either free or a class method.
type FuncDef struct {
	Base

	Name              string
	Args              []Arg
	LastArgIsMultiArg bool
	HasSelfArg        bool
	Body              []Node
	FuncScope         *Scope

	ClosureBoundVars []*ScopeDef // lazily populated by the identifier resolver

	FunctionID int64 // set once register_source_function succeeds; -1 until then
}

func (f *FuncDef) Kind() Kind { return KindFuncDef }

// InlineFuncDef is an anonymous function literal (a closure expression).
type InlineFuncDef struct {
	Base

	Args              []Arg
	LastArgIsMultiArg bool
	Body              []Node
	FuncScope         *Scope

	ClosureBoundVars []*ScopeDef
	FunctionID       int64
}

func (f *InlineFuncDef) Kind() Kind { return KindInlineFuncDef }

// ForStmt is `for item in expr { ... }`. The iterator variable is itself a
// scope_def, file-local like a VarDef.
type ForStmt struct {
	Base

	IteratorName string
	Iterated     Node
	Body         []Node
	LoopScope    *Scope
}

func (f *ForStmt) Kind() Kind { return KindForStmt }

// IdentifierRef is a bare name reference: a variable, function, class, or
// the leading element of a dotted import access.
type IdentifierRef struct {
	Base

	Name string

	// Def records the scope-def this reference resolved to, for
	// declarations whose storage is assigned after identifier resolution
	// (locals, parameters, for-iterators).
	Def *ScopeDef

	// ResolvedToBuiltin is set when the scope chain search failed but the
	// name matched the builtin module (spec.md §4.B.4).
	ResolvedToBuiltin bool
}

func (i *IdentifierRef) Kind() Kind { return KindIdentifierRef }

// LiteralKind tags a Literal's value.
type LiteralKind int

const (
	LiteralNone LiteralKind = iota
	LiteralBool
	LiteralInt
	LiteralFloat
	LiteralString
)

// Literal is a constant value appearing directly in source.
type Literal struct {
	Base

	LitKind    LiteralKind
	IsNone     bool
	BoolValue  bool
	IntValue   int64
	FloatValue float64
	StrValue   string
}

func (l *Literal) Kind() Kind { return KindLiteral }

// BinOp tags a BinaryOp's operator.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpEquals
	OpNotEquals
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpAnd
	OpOr
	// OpMemberByIdentifier is `left.Right`: a dotted member or import access.
	// Right must be an *IdentifierRef; it is never resolved via the scope
	// chain (spec.md §4.B.4 "skip identifier nodes that are the right-hand
	// side of a dotted member access").
	OpMemberByIdentifier
)

// BinaryOp is a two-operand expression, including dotted member access.
type BinaryOp struct {
	Base

	Op    BinOp
	Left  Node
	Right Node
}

func (b *BinaryOp) Kind() Kind { return KindBinaryOp }

// Call is a function or method invocation.
type Call struct {
	Base

	Callee     Node
	Args       []Node
	KwargNames []string // positionally parallel tail of Args that carry keyword names
}

func (c *Call) Kind() Kind { return KindCall }

// Block is a plain braced statement sequence introducing no new scope of
// its own kind beyond what its owner (ForStmt/FuncDef/File) already made.
type Block struct {
	Base
	Body []Node
}

func (b *Block) Kind() Kind { return KindBlock }

// ReturnStmt is `return [expr]`.
type ReturnStmt struct {
	Base
	Value Node // nil for a bare return
}

func (r *ReturnStmt) Kind() Kind { return KindReturn }
