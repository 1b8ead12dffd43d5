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

package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgram_WellKnownMethodNamesInternedUpFront(t *testing.T) {
	p := NewProgram()

	id, ok := p.WellKnownMethodNameID[MethodInit]
	require.True(t, ok)
	assert.Equal(t, id, p.Symbols.LookupMemberName(MethodInit, false))

	// Interning the same name again must not mint a new id.
	assert.Equal(t, id, p.Symbols.InternMemberName(MethodInit))
}

func TestAddGlobalVar_DuplicateNameRejected(t *testing.T) {
	p := NewProgram()

	id1, err := p.AddGlobalVar("counter", "app.main", "", false, "file:///app/main.h64")
	require.NoError(t, err)
	assert.Equal(t, int64(0), id1)

	_, err = p.AddGlobalVar("counter", "app.main", "", false, "file:///app/main.h64")
	assert.Error(t, err)
}

func TestAddGlobalVar_SameNameDifferentModulesOK(t *testing.T) {
	p := NewProgram()

	_, err := p.AddGlobalVar("counter", "app.main", "", false, "")
	require.NoError(t, err)
	_, err = p.AddGlobalVar("counter", "app.other", "", false, "")
	require.NoError(t, err)
}

func TestRegisterSourceFunction_DuplicateQualifiedNameRejected(t *testing.T) {
	p := NewProgram()

	id1, err := p.RegisterSourceFunction("main", "app.main", "", -1, 0, nil, false, false, "file:///app/main.h64")
	require.NoError(t, err)
	assert.Equal(t, int64(0), id1)

	_, err = p.RegisterSourceFunction("main", "app.main", "", -1, 0, nil, false, false, "file:///app/main.h64")
	assert.Error(t, err)
}

func TestRegisterSourceFunction_ClassMethodLinksBack(t *testing.T) {
	p := NewProgram()

	classID, err := p.AddClass("Widget", "", "app.main", "")
	require.NoError(t, err)

	funcID, err := p.RegisterSourceFunction("describe", "app.main", "", classID, 0, nil, false, true, "")
	require.NoError(t, err)

	_, resolvedFuncID := p.LookupClassMemberByName(classID, "describe")
	assert.Equal(t, funcID, resolvedFuncID)
}

func TestFunctionByKey_RoundTrips(t *testing.T) {
	p := NewProgram()

	id, err := p.RegisterSourceFunction("helper", "app.util", "", -1, 1, nil, false, false, "")
	require.NoError(t, err)

	got, ok := p.FunctionByKey("app.util", "", "helper")
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = p.FunctionByKey("app.util", "", "missing")
	assert.False(t, ok)
}

func TestSymbols_FileURIIndex_FindsExistingInsteadOfAppending(t *testing.T) {
	s := NewSymbols()

	first := s.FileURIIndex("file:///app/main.h64")
	second := s.FileURIIndex("file:///app/other.h64")
	again := s.FileURIIndex("file:///app/main.h64")

	assert.Equal(t, first, again, "looking up an already-known uri must not append a duplicate entry")
	assert.NotEqual(t, first, second)
	assert.Len(t, s.FileURIs, 2)
}

func TestResolveMethod_WalksBaseChain(t *testing.T) {
	p := NewProgram()

	baseID, err := p.AddClass("Base", "", "app.main", "")
	require.NoError(t, err)
	_, err = p.RegisterSourceFunction("greet", "app.main", "", baseID, 0, nil, false, true, "")
	require.NoError(t, err)

	derivedID, err := p.AddClass("Derived", "", "app.main", "")
	require.NoError(t, err)
	p.Classes[derivedID].BaseClassID = baseID

	ownerID, _, funcID, ok := p.ResolveMethod(derivedID, "greet")
	require.True(t, ok)
	assert.Equal(t, baseID, ownerID)
	assert.GreaterOrEqual(t, funcID, int64(0))
}

func TestResolveMethod_UnknownNameNotFound(t *testing.T) {
	p := NewProgram()
	classID, err := p.AddClass("Widget", "", "app.main", "")
	require.NoError(t, err)

	_, _, _, ok := p.ResolveMethod(classID, "nonexistent")
	assert.False(t, ok)
}
