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

package corelib

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-lang/kestrel/pkg/object"
)

func TestRegisterErrorClassesBuildsHierarchy(t *testing.T) {
	p := object.NewProgram()
	baseID, err := RegisterErrorClasses(p)
	require.NoError(t, err)

	builtin := p.Symbols.Modules[p.Symbols.BuiltinModuleIndex]
	for _, name := range append([]string{ClassError}, derivedErrorClasses...) {
		_, ok := builtin.ClassNameToEntry[name]
		assert.True(t, ok, "class %s should be registered on the builtin module", name)
	}

	idx := builtin.ClassNameToEntry[ClassTypeError]
	typeErrID := builtin.ClassSymbols[idx].GlobalID
	assert.Equal(t, baseID, p.Classes[typeErrID].BaseClassID)

	// The base class carries the single inherited message variable.
	varID, funcID := p.LookupClassMemberByName(baseID, "message")
	assert.Equal(t, int64(0), varID)
	assert.Equal(t, int64(-1), funcID)
}

func TestRegisterFuncsVisibleByBareName(t *testing.T) {
	p := object.NewProgram()
	var buf bytes.Buffer
	require.NoError(t, RegisterFuncs(p, &buf))

	builtin := p.Symbols.Modules[p.Symbols.BuiltinModuleIndex]
	for _, name := range []string{"print", "str", "int", "float", "assert"} {
		_, ok := builtin.FuncNameToEntry[name]
		assert.True(t, ok, "builtin %s should be registered", name)
	}
}

func TestPrintWritesToConfiguredWriter(t *testing.T) {
	p := object.NewProgram()
	var buf bytes.Buffer
	require.NoError(t, RegisterFuncs(p, &buf))

	id, ok := p.FunctionByKey("", "", "print")
	require.True(t, ok)
	_, err := p.Functions[id].Native(
		[]object.Value{object.Int64(42), object.PreallocStr("ok")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "42 ok\n", buf.String())
}

func TestStrAndIntConversions(t *testing.T) {
	v, err := strFunc([]object.Value{object.Float64(1.5)}, nil)
	require.NoError(t, err)
	assert.Equal(t, object.ValConstPreallocStr, v.Type)
	assert.Equal(t, "1.5", v.StrValue)

	v, err = intFunc([]object.Value{object.PreallocStr(" 7 ")}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.IntValue)

	_, err = intFunc([]object.Value{object.PreallocStr("nope")}, nil)
	assert.Error(t, err)
}

func TestAssert(t *testing.T) {
	_, err := assertFunc([]object.Value{object.Bool(true)}, nil)
	assert.NoError(t, err)

	_, err = assertFunc([]object.Value{object.Bool(false), object.PreallocStr("boom")}, nil)
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
}
