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

package debug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-lang/kestrel/pkg/object"
	"github.com/kestrel-lang/kestrel/pkg/vm"
)

func buildTestProgram(t *testing.T) *object.Program {
	t.Helper()
	p := object.NewProgram()

	_, err := p.RegisterSourceFunction("main", "app", "", -1, 0, nil, false, false, "file:///app.h64")
	require.NoError(t, err)
	_, err = p.RegisterSourceFunction("helper", "app.util", "", -1, 1, nil, false, false, "file:///util.h64")
	require.NoError(t, err)
	_, err = p.AddClass("Widget", "file:///app.h64", "app", "")
	require.NoError(t, err)
	_, err = p.AddGlobalVar("limit", "app", "", true, "file:///app.h64")
	require.NoError(t, err)
	return p
}

func TestSearchSymbolsLiteral(t *testing.T) {
	p := buildTestProgram(t)

	res, err := SearchSymbols(p, SearchSymbolsArgs{Pattern: "help", Literal: true})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, res.Content, "helper")
	assert.Contains(t, res.Content, "app.util")
	assert.NotContains(t, res.Content, "Widget")
}

func TestSearchSymbolsKindFilter(t *testing.T) {
	p := buildTestProgram(t)

	res, err := SearchSymbols(p, SearchSymbolsArgs{Pattern: ".", Kind: "class"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Widget")
	assert.NotContains(t, res.Content, "helper")
}

func TestSearchSymbolsInvalidRegex(t *testing.T) {
	p := buildTestProgram(t)

	res, err := SearchSymbols(p, SearchSymbolsArgs{Pattern: "("})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "literal=true")
}

func TestFindFunctionPrefersNonBuiltin(t *testing.T) {
	p := buildTestProgram(t)
	// Shadow "main" with a builtin of the same name.
	_, err := p.RegisterCFunction("main", "", "", 0, nil, false,
		func(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
			return object.None(), nil
		})
	require.NoError(t, err)

	id, ok := FindFunction(p, "main")
	require.True(t, ok)
	sym, found := p.Symbols.FuncSymbolByID(id)
	require.True(t, found)
	assert.Equal(t, "main", sym.Name)
	assert.False(t, p.Functions[id].IsNative, "user-module symbol wins over builtin")
}

func TestStatusCounts(t *testing.T) {
	p := buildTestProgram(t)
	c := Counts(p)
	assert.Equal(t, 2, c.Functions)
	assert.Equal(t, 1, c.Classes)
	assert.Equal(t, 1, c.Globals)
	assert.Equal(t, int64(-1), c.MainFuncID)

	res, err := Status(p)
	require.NoError(t, err)
	assert.Contains(t, res.Content, "functions: 2")
	assert.Contains(t, res.Content, "(builtin)")
}

func TestDisassembleAndTrace(t *testing.T) {
	p := object.NewProgram()
	callee, err := p.RegisterSourceFunction("leaf", "app", "", -1, 0, nil, false, false, "")
	require.NoError(t, err)
	caller, err := p.RegisterSourceFunction("root", "app", "", -1, 0, nil, false, false, "")
	require.NoError(t, err)

	code := []vm.Instruction{
		{Tag: vm.InstSetConst, Dst: 0, Const: object.Int64(1)},
		{Tag: vm.InstReturnValue, Src: 0},
		{Tag: vm.InstCall, Dst: 0, CalleeFuncID: callee, CalleeSlot: -1},
		{Tag: vm.InstReturnValue, Src: 0},
	}
	require.NoError(t, p.SetInstructionOffset(callee, 0))
	require.NoError(t, p.SetInstructionOffset(caller, 2))

	dis, err := Disassemble(p, code, caller)
	require.NoError(t, err)
	assert.Contains(t, dis.Content, "call")
	assert.Contains(t, dis.Content, "leaf")
	assert.Equal(t, 2, strings.Count(dis.Content, "\n")-1, "caller body is two instructions")

	trace, err := TraceCalls(p, code, TraceCallsArgs{Function: "root"})
	require.NoError(t, err)
	assert.Contains(t, trace.Content, "root")
	assert.Contains(t, trace.Content, "leaf")
}

func TestBaseChain(t *testing.T) {
	p := object.NewProgram()
	base, err := p.AddClass("Shape", "", "app", "")
	require.NoError(t, err)
	derived, err := p.AddClass("Circle", "", "app", "")
	require.NoError(t, err)
	p.Classes[derived].BaseClassID = base

	res, err := BaseChain(p, "Circle")
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Circle")
	assert.Contains(t, res.Content, "Shape")
}
