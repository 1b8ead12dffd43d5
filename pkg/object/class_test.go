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

func TestRegisterClassMember_MethodIndexZeroIsNotMisclassifiedAsVariable(t *testing.T) {
	// Regression test for the fixed encoding boundary: method index 0 must
	// decode back as a method, not a variable.
	p := NewProgram()
	classID, err := p.AddClass("Widget", "", "app.main", "")
	require.NoError(t, err)

	_, err = p.RegisterClassMember(classID, "first", 0)
	require.NoError(t, err)

	varID, funcID := p.LookupClassMemberByName(classID, "first")
	assert.Equal(t, int64(-1), varID)
	assert.Equal(t, int64(0), funcID)
}

func TestRegisterClassMember_VariableSlotDecodesBack(t *testing.T) {
	p := NewProgram()
	classID, err := p.AddClass("Widget", "", "app.main", "")
	require.NoError(t, err)

	entryIdx, err := p.RegisterClassVariable(classID, "label")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entryIdx)

	varID, funcID := p.LookupClassMemberByName(classID, "label")
	assert.Equal(t, int64(-1), funcID)
	assert.Equal(t, int64(0), varID)
}

func TestRegisterClassMember_DuplicateNameRejected(t *testing.T) {
	p := NewProgram()
	classID, err := p.AddClass("Widget", "", "app.main", "")
	require.NoError(t, err)

	_, err = p.RegisterClassMember(classID, "name", 0)
	require.NoError(t, err)

	_, err = p.RegisterClassMember(classID, "name", -1)
	assert.Error(t, err)
}

func TestRegisterClassMember_MethodsAndVariablesCoexist(t *testing.T) {
	p := NewProgram()
	classID, err := p.AddClass("Widget", "", "app.main", "")
	require.NoError(t, err)

	_, err = p.RegisterClassMember(classID, "render", 7)
	require.NoError(t, err)
	_, err = p.RegisterClassVariable(classID, "width")
	require.NoError(t, err)
	_, err = p.RegisterClassVariable(classID, "height")
	require.NoError(t, err)

	_, funcID := p.LookupClassMemberByName(classID, "render")
	assert.Equal(t, int64(7), funcID)

	widthVarID, _ := p.LookupClassMemberByName(classID, "width")
	heightVarID, _ := p.LookupClassMemberByName(classID, "height")
	assert.Equal(t, int64(0), widthVarID)
	assert.Equal(t, int64(1), heightVarID)
}

func TestLookupClassMember_AbsentNameReturnsBothNegativeOne(t *testing.T) {
	p := NewProgram()
	classID, err := p.AddClass("Widget", "", "app.main", "")
	require.NoError(t, err)

	varID, funcID := p.LookupClassMemberByName(classID, "nope")
	assert.Equal(t, int64(-1), varID)
	assert.Equal(t, int64(-1), funcID)
}

func TestAddClass_DuplicateNameInSameModuleRejected(t *testing.T) {
	p := NewProgram()
	_, err := p.AddClass("Widget", "", "app.main", "")
	require.NoError(t, err)

	_, err = p.AddClass("Widget", "", "app.main", "")
	assert.Error(t, err)
}

func TestAddClass_SameNameDifferentModulesOK(t *testing.T) {
	p := NewProgram()
	_, err := p.AddClass("Widget", "", "app.main", "")
	require.NoError(t, err)
	_, err = p.AddClass("Widget", "", "app.ui", "")
	assert.NoError(t, err)
}
