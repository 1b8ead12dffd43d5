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

// Package parser builds the AST consumed by pkg/resolver: a recursive
// descent over pkg/lexer's token stream. Parse errors abort the file (the
// resolver never sees a partial AST); everything after parsing reports
// through diagnostics instead.
package parser

import (
	"fmt"

	"github.com/kestrel-lang/kestrel/pkg/ast"
	"github.com/kestrel-lang/kestrel/pkg/lexer"
)

// Parse lexes and parses src into an *ast.File. uri is recorded on the file
// for diagnostics and debug symbols.
func Parse(uri string, src []byte) (*ast.File, error) {
	p := &parser{toks: lexer.Lex(src), uri: uri}
	f, err := p.parseFile()
	if err != nil {
		return nil, err
	}
	f.URI = uri
	return f, nil
}

type parser struct {
	toks []lexer.Token
	pos  int
	uri  string
}

func (p *parser) peek() lexer.Token { return p.toks[p.pos] }

func (p *parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if t.Kind != lexer.TokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) atKeyword(kw string) bool {
	t := p.peek()
	return t.Kind == lexer.TokenKeyword && t.Text == kw
}

func (p *parser) expect(kind lexer.TokenKind) (lexer.Token, error) {
	t := p.peek()
	if t.Kind != kind {
		return t, p.errorAt(t, "expected %s, got %s %q", kind, t.Kind, t.Text)
	}
	return p.advance(), nil
}

func (p *parser) expectKeyword(kw string) error {
	t := p.peek()
	if t.Kind != lexer.TokenKeyword || t.Text != kw {
		return p.errorAt(t, "expected %q, got %q", kw, t.Text)
	}
	p.advance()
	return nil
}

func (p *parser) errorAt(t lexer.Token, format string, args ...any) error {
	return fmt.Errorf("%s:%d:%d: %s", p.uri, t.Line, t.Col, fmt.Sprintf(format, args...))
}

func (p *parser) parseFile() (*ast.File, error) {
	f := &ast.File{}
	for {
		t := p.peek()
		switch {
		case t.Kind == lexer.TokenEOF:
			return f, nil
		case t.Kind == lexer.TokenInvalid:
			return nil, p.errorAt(t, "invalid token %q", t.Text)
		case p.atKeyword("import"):
			imp, err := p.parseImport()
			if err != nil {
				return nil, err
			}
			imp.Parent = f
			f.Imports = append(f.Imports, imp)
		case p.atKeyword("var") || p.atKeyword("const"):
			v, err := p.parseVarDef()
			if err != nil {
				return nil, err
			}
			v.Parent = f
			f.Body = append(f.Body, v)
		case p.atKeyword("class"):
			c, err := p.parseClassDef()
			if err != nil {
				return nil, err
			}
			c.Parent = f
			f.Body = append(f.Body, c)
		case p.atKeyword("func"):
			fn, err := p.parseFuncDef(false)
			if err != nil {
				return nil, err
			}
			fn.Parent = f
			f.Body = append(f.Body, fn)
		default:
			return nil, p.errorAt(t, "unexpected %q at file scope", t.Text)
		}
	}
}

func (p *parser) parseImport() (*ast.Import, error) {
	p.advance() // import
	imp := &ast.Import{}

	name, err := p.expect(lexer.TokenIdentifier)
	if err != nil {
		return nil, err
	}
	imp.Elements = append(imp.Elements, name.Text)
	for p.peek().Kind == lexer.TokenDot {
		p.advance()
		name, err = p.expect(lexer.TokenIdentifier)
		if err != nil {
			return nil, err
		}
		imp.Elements = append(imp.Elements, name.Text)
	}

	if p.atKeyword("from") {
		p.advance()
		lib, err := p.expect(lexer.TokenIdentifier)
		if err != nil {
			return nil, err
		}
		imp.Library = lib.Text
	}
	if p.atKeyword("as") {
		p.advance()
		alias, err := p.expect(lexer.TokenIdentifier)
		if err != nil {
			return nil, err
		}
		imp.Alias = alias.Text
	}
	return imp, nil
}

func (p *parser) parseVarDef() (*ast.VarDef, error) {
	kw := p.advance() // var | const
	v := &ast.VarDef{IsConst: kw.Text == "const"}

	name, err := p.expect(lexer.TokenIdentifier)
	if err != nil {
		return nil, err
	}
	v.Name = name.Text

	if p.peek().Kind == lexer.TokenAssign {
		p.advance()
		init, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		setParent(init, v)
		v.Initializer = init
	} else if v.IsConst {
		return nil, p.errorAt(p.peek(), "const %q requires an initializer", v.Name)
	}
	return v, nil
}

func (p *parser) parseClassDef() (*ast.ClassDef, error) {
	p.advance() // class
	c := &ast.ClassDef{}

	name, err := p.expect(lexer.TokenIdentifier)
	if err != nil {
		return nil, err
	}
	c.Name = name.Text

	if p.atKeyword("extends") {
		p.advance()
		base, err := p.expect(lexer.TokenIdentifier)
		if err != nil {
			return nil, err
		}
		c.ExtendsName = base.Text
	}

	if _, err := p.expect(lexer.TokenLBrace); err != nil {
		return nil, err
	}
	for p.peek().Kind != lexer.TokenRBrace {
		t := p.peek()
		switch {
		case p.atKeyword("var") || p.atKeyword("const"):
			v, err := p.parseVarDef()
			if err != nil {
				return nil, err
			}
			v.Parent = c
			c.Body = append(c.Body, v)
		case p.atKeyword("func"):
			fn, err := p.parseFuncDef(true)
			if err != nil {
				return nil, err
			}
			fn.Parent = c
			c.Body = append(c.Body, fn)
		default:
			return nil, p.errorAt(t, "unexpected %q in class body", t.Text)
		}
	}
	p.advance() // }
	return c, nil
}

// parseFuncDef parses a named function. isMethod marks functions declared
// directly in a class body, which take an implicit self argument.
func (p *parser) parseFuncDef(isMethod bool) (*ast.FuncDef, error) {
	p.advance() // func
	fn := &ast.FuncDef{FunctionID: -1, HasSelfArg: isMethod}

	name, err := p.expect(lexer.TokenIdentifier)
	if err != nil {
		return nil, err
	}
	fn.Name = name.Text

	if p.peek().Kind == lexer.TokenLParen {
		fn.Args, fn.LastArgIsMultiArg, err = p.parseArgList(fn)
		if err != nil {
			return nil, err
		}
	}

	fn.Body, err = p.parseBlock(fn)
	return fn, err
}

func (p *parser) parseArgList(owner ast.Node) ([]ast.Arg, bool, error) {
	p.advance() // (
	var args []ast.Arg
	multi := false

	for p.peek().Kind != lexer.TokenRParen {
		if len(args) > 0 {
			if _, err := p.expect(lexer.TokenComma); err != nil {
				return nil, false, err
			}
		}
		name, err := p.expect(lexer.TokenIdentifier)
		if err != nil {
			return nil, false, err
		}
		arg := ast.Arg{Name: name.Text}
		if p.peek().Kind == lexer.TokenAssign {
			p.advance()
			def, err := p.parseExpr()
			if err != nil {
				return nil, false, err
			}
			setParent(def, owner)
			arg.HasDefault = true
			arg.DefaultValue = def
		}
		if p.peek().Kind == lexer.TokenEllipsis {
			p.advance()
			multi = true
			args = append(args, arg)
			break
		}
		args = append(args, arg)
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, false, err
	}
	return args, multi, nil
}

func (p *parser) parseBlock(owner ast.Node) ([]ast.Node, error) {
	if _, err := p.expect(lexer.TokenLBrace); err != nil {
		return nil, err
	}
	var body []ast.Node
	for p.peek().Kind != lexer.TokenRBrace {
		if p.peek().Kind == lexer.TokenEOF {
			return nil, p.errorAt(p.peek(), "unterminated block")
		}
		stmt, err := p.parseStmt(owner)
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	p.advance() // }
	return body, nil
}

func (p *parser) parseStmt(owner ast.Node) (ast.Node, error) {
	switch {
	case p.atKeyword("var") || p.atKeyword("const"):
		v, err := p.parseVarDef()
		if err != nil {
			return nil, err
		}
		v.Parent = owner
		return v, nil
	case p.atKeyword("for"):
		return p.parseForStmt(owner)
	case p.atKeyword("return"):
		p.advance()
		r := &ast.ReturnStmt{}
		r.Parent = owner
		if startsExpr(p.peek()) {
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			setParent(val, r)
			r.Value = val
		}
		return r, nil
	case p.atKeyword("func"):
		fn, err := p.parseFuncDef(false)
		if err != nil {
			return nil, err
		}
		fn.Parent = owner
		return fn, nil
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	setParent(expr, owner)
	return expr, nil
}

func (p *parser) parseForStmt(owner ast.Node) (ast.Node, error) {
	p.advance() // for
	f := &ast.ForStmt{}
	f.Parent = owner

	name, err := p.expect(lexer.TokenIdentifier)
	if err != nil {
		return nil, err
	}
	f.IteratorName = name.Text

	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	f.Iterated, err = p.parseExpr()
	if err != nil {
		return nil, err
	}
	setParent(f.Iterated, f)

	f.Body, err = p.parseBlock(f)
	return f, err
}

func startsExpr(t lexer.Token) bool {
	switch t.Kind {
	case lexer.TokenInt, lexer.TokenFloat, lexer.TokenString,
		lexer.TokenIdentifier, lexer.TokenLParen, lexer.TokenMinus:
		return true
	case lexer.TokenKeyword:
		switch t.Text {
		case "none", "true", "false", "not", "self", "base", "func":
			return true
		}
	}
	return false
}

// Expression parsing, lowest precedence first.

func (p *parser) parseExpr() (ast.Node, error) { return p.parseOr() }

func (p *parser) parseOr() (ast.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = newBinOp(ast.OpOr, left, right)
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("and") {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = newBinOp(ast.OpAnd, left, right)
	}
	return left, nil
}

func (p *parser) parseEquality() (ast.Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinOp
		switch p.peek().Kind {
		case lexer.TokenEquals:
			op = ast.OpEquals
		case lexer.TokenNotEquals:
			op = ast.OpNotEquals
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = newBinOp(op, left, right)
	}
}

func (p *parser) parseComparison() (ast.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinOp
		switch p.peek().Kind {
		case lexer.TokenLess:
			op = ast.OpLess
		case lexer.TokenLessEq:
			op = ast.OpLessEq
		case lexer.TokenGreater:
			op = ast.OpGreater
		case lexer.TokenGreaterEq:
			op = ast.OpGreaterEq
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = newBinOp(op, left, right)
	}
}

func (p *parser) parseAdditive() (ast.Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinOp
		switch p.peek().Kind {
		case lexer.TokenPlus:
			op = ast.OpAdd
		case lexer.TokenMinus:
			op = ast.OpSubtract
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = newBinOp(op, left, right)
	}
}

func (p *parser) parseMultiplicative() (ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinOp
		switch p.peek().Kind {
		case lexer.TokenStar:
			op = ast.OpMultiply
		case lexer.TokenSlash:
			op = ast.OpDivide
		case lexer.TokenPercent:
			op = ast.OpModulo
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = newBinOp(op, left, right)
	}
}

func (p *parser) parseUnary() (ast.Node, error) {
	if p.atKeyword("not") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// `not x` parses as `x == false`, keeping the AST's operator set to
		// the binary forms the lowering stage handles uniformly.
		lit := &ast.Literal{LitKind: ast.LiteralBool, BoolValue: false}
		return newBinOp(ast.OpEquals, operand, lit), nil
	}
	if p.peek().Kind == lexer.TokenMinus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		zero := &ast.Literal{LitKind: ast.LiteralInt, IntValue: 0}
		return newBinOp(ast.OpSubtract, zero, operand), nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Kind {
		case lexer.TokenDot:
			p.advance()
			name, err := p.expect(lexer.TokenIdentifier)
			if err != nil {
				return nil, err
			}
			ref := &ast.IdentifierRef{Name: name.Text}
			expr = newBinOp(ast.OpMemberByIdentifier, expr, ref)
		case lexer.TokenLParen:
			expr, err = p.parseCall(expr)
			if err != nil {
				return nil, err
			}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parseCall(callee ast.Node) (ast.Node, error) {
	p.advance() // (
	call := &ast.Call{Callee: callee}
	setParent(callee, call)

	for p.peek().Kind != lexer.TokenRParen {
		if len(call.Args) > 0 {
			if _, err := p.expect(lexer.TokenComma); err != nil {
				return nil, err
			}
		}
		// `name = expr` is a keyword argument; requires one lookahead past
		// the identifier.
		if p.peek().Kind == lexer.TokenIdentifier && p.toks[p.pos+1].Kind == lexer.TokenAssign {
			name := p.advance()
			p.advance() // =
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			setParent(val, call)
			call.Args = append(call.Args, val)
			call.KwargNames = append(call.KwargNames, name.Text)
			continue
		}
		if len(call.KwargNames) > 0 {
			return nil, p.errorAt(p.peek(), "positional argument after keyword argument")
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		setParent(arg, call)
		call.Args = append(call.Args, arg)
	}
	p.advance() // )
	return call, nil
}

func (p *parser) parsePrimary() (ast.Node, error) {
	t := p.peek()
	switch t.Kind {
	case lexer.TokenInvalid:
		return nil, p.errorAt(t, "invalid token %q", t.Text)
	case lexer.TokenInt:
		p.advance()
		return &ast.Literal{LitKind: ast.LiteralInt, IntValue: t.IntValue}, nil
	case lexer.TokenFloat:
		p.advance()
		return &ast.Literal{LitKind: ast.LiteralFloat, FloatValue: t.FloatValue}, nil
	case lexer.TokenString:
		p.advance()
		return &ast.Literal{LitKind: ast.LiteralString, StrValue: t.StrValue}, nil
	case lexer.TokenIdentifier:
		p.advance()
		return &ast.IdentifierRef{Name: t.Text}, nil
	case lexer.TokenLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case lexer.TokenKeyword:
		switch t.Text {
		case "none":
			p.advance()
			return &ast.Literal{LitKind: ast.LiteralNone, IsNone: true}, nil
		case "true", "false":
			p.advance()
			return &ast.Literal{LitKind: ast.LiteralBool, BoolValue: t.Text == "true"}, nil
		case "self", "base":
			p.advance()
			return &ast.IdentifierRef{Name: t.Text}, nil
		case "func":
			return p.parseInlineFunc()
		}
	}
	return nil, p.errorAt(t, "unexpected %q in expression", t.Text)
}

// parseInlineFunc parses `func (args) { body }` — a func keyword not
// followed by a name is an anonymous closure expression.
func (p *parser) parseInlineFunc() (ast.Node, error) {
	p.advance() // func
	fn := &ast.InlineFuncDef{FunctionID: -1}

	var err error
	if p.peek().Kind == lexer.TokenLParen {
		fn.Args, fn.LastArgIsMultiArg, err = p.parseArgList(fn)
		if err != nil {
			return nil, err
		}
	}
	fn.Body, err = p.parseBlock(fn)
	return fn, err
}

func newBinOp(op ast.BinOp, left, right ast.Node) *ast.BinaryOp {
	b := &ast.BinaryOp{Op: op, Left: left, Right: right}
	setParent(left, b)
	setParent(right, b)
	return b
}

func setParent(child, parent ast.Node) {
	ast.SetParent(child, parent)
}
