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

package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-lang/kestrel/pkg/corelib"
	"github.com/kestrel-lang/kestrel/pkg/object"
	"github.com/kestrel-lang/kestrel/pkg/vm"
)

// newFunc registers a source function, points it at offset, and sizes its
// frame.
func newFunc(t *testing.T, p *object.Program, name string, offset int64, slots int) int64 {
	t.Helper()
	id, err := p.RegisterSourceFunction(name, "m", "", -1, 0, nil, false, false, "")
	require.NoError(t, err)
	require.NoError(t, p.SetInstructionOffset(id, offset))
	p.Functions[id].StackSlotCount = slots
	return id
}

func TestSetConstMaterializesHeapString(t *testing.T) {
	p := object.NewProgram()
	fid := newFunc(t, p, "f", 0, 1)
	code := []vm.Instruction{
		{Tag: vm.InstSetConst, Dst: 0, Const: object.PreallocStr("hello")},
		{Tag: vm.InstReturnValue, Src: 0},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(fid)
	require.NoError(t, err)
	require.Equal(t, object.ValGCVal, ret.Type)

	gv, err := th.Heap.Get(ret.GCHandle)
	require.NoError(t, err)
	assert.Equal(t, vm.GCString, gv.Type)
	assert.Equal(t, "hello", gv.Str)
	assert.Equal(t, int64(1), th.Heap.ExternalRefcount(ret.GCHandle))
}

func TestCallAndReturn(t *testing.T) {
	p := object.NewProgram()
	// callee at 0: return 41 + 1
	callee := newFunc(t, p, "callee", 0, 3)
	// caller at 4: call callee into slot 0, return it
	caller := newFunc(t, p, "caller", 4, 1)
	code := []vm.Instruction{
		{Tag: vm.InstSetConst, Dst: 0, Const: object.Int64(41)},
		{Tag: vm.InstSetConst, Dst: 1, Const: object.Int64(1)},
		{Tag: vm.InstBinOp, BinOp: vm.BinAdd, Dst: 2, Src: 0, Src2: 1},
		{Tag: vm.InstReturnValue, Src: 2},
		{Tag: vm.InstCall, Dst: 0, CalleeFuncID: callee, CalleeSlot: -1},
		{Tag: vm.InstReturnValue, Src: 0},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(caller)
	require.NoError(t, err)
	assert.Equal(t, object.ValInt64, ret.Type)
	assert.Equal(t, int64(42), ret.IntValue)
	assert.Equal(t, int64(0), th.Stack.Len(), "stack fully unwound after return")
}

func TestCallPassesArguments(t *testing.T) {
	p := object.NewProgram()
	sub, err := p.RegisterSourceFunction("sub", "m", "", -1, 2, nil, false, false, "")
	require.NoError(t, err)
	require.NoError(t, p.SetInstructionOffset(sub, 0))
	p.Functions[sub].StackSlotCount = 3

	caller := newFunc(t, p, "caller", 2, 3)
	code := []vm.Instruction{
		{Tag: vm.InstBinOp, BinOp: vm.BinSubtract, Dst: 2, Src: 0, Src2: 1},
		{Tag: vm.InstReturnValue, Src: 2},
		{Tag: vm.InstSetConst, Dst: 0, Const: object.Int64(50)},
		{Tag: vm.InstSetConst, Dst: 1, Const: object.Int64(8)},
		{Tag: vm.InstCall, Dst: 2, CalleeFuncID: sub, CalleeSlot: -1, ArgSlots: []int64{0, 1}},
		{Tag: vm.InstReturnValue, Src: 2},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(caller)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ret.IntValue)
}

func TestCondJumpAndJumpTarget(t *testing.T) {
	p := object.NewProgram()
	fid := newFunc(t, p, "f", 0, 2)
	// if false jump to 4, else return 1; target: return 2
	code := []vm.Instruction{
		{Tag: vm.InstSetConst, Dst: 0, Const: object.Bool(false)},
		{Tag: vm.InstCondJump, CondSlot: 0, JumpTarget: 4},
		{Tag: vm.InstSetConst, Dst: 1, Const: object.Int64(1)},
		{Tag: vm.InstReturnValue, Src: 1},
		{Tag: vm.InstJumpTarget},
		{Tag: vm.InstSetConst, Dst: 1, Const: object.Int64(2)},
		{Tag: vm.InstReturnValue, Src: 1},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(fid)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ret.IntValue)
}

func TestListIteration(t *testing.T) {
	p := object.NewProgram()
	fid := newFunc(t, p, "f", 0, 5)
	// acc = 0; list = [1, 2]; for v in list { acc = acc + v }; return acc
	code := []vm.Instruction{
		{Tag: vm.InstSetConst, Dst: 4, Const: object.Int64(0)},
		{Tag: vm.InstNewList, Dst: 0},
		{Tag: vm.InstSetConst, Dst: 1, Const: object.Int64(1)},
		{Tag: vm.InstAddToList, Dst: 0, ElemSlot: 1},
		{Tag: vm.InstSetConst, Dst: 1, Const: object.Int64(2)},
		{Tag: vm.InstAddToList, Dst: 0, ElemSlot: 1},
		{Tag: vm.InstNewIterator, Dst: 2, ContainerSlot: 0},
		{Tag: vm.InstJumpTarget},                                       // 7
		{Tag: vm.InstIterate, Dst: 3, Src: 2, JumpTarget: 11},          // 8
		{Tag: vm.InstBinOp, BinOp: vm.BinAdd, Dst: 4, Src: 4, Src2: 3}, // 9
		{Tag: vm.InstJump, JumpTarget: 7},                              // 10
		{Tag: vm.InstJumpTarget},                                       // 11
		{Tag: vm.InstReturnValue, Src: 4},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(fid)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ret.IntValue)
}

func TestCatchFrameCatchesMathError(t *testing.T) {
	p := object.NewProgram()
	_, err := corelib.RegisterErrorClasses(p)
	require.NoError(t, err)
	mathErrID := classID(t, p, corelib.ClassMathError)

	fid := newFunc(t, p, "f", 0, 5)
	code := []vm.Instruction{
		{Tag: vm.InstPushCatchFrame, Dst: 4, CatchJumpTarget: 7},          // 0
		{Tag: vm.InstAddCatchType, CatchClassID: mathErrID},               // 1
		{Tag: vm.InstSetConst, Dst: 0, Const: object.Int64(1)},            // 2
		{Tag: vm.InstSetConst, Dst: 1, Const: object.Int64(0)},            // 3
		{Tag: vm.InstBinOp, BinOp: vm.BinDivide, Dst: 2, Src: 0, Src2: 1}, // 4: raises
		{Tag: vm.InstPopCatchFrame},                                       // 5: not reached
		{Tag: vm.InstReturnValue, Src: 2},                                 // 6: not reached
		{Tag: vm.InstJumpTarget},                                          // 7: catch handler
		{Tag: vm.InstSetConst, Dst: 0, Const: object.Int64(99)},
		{Tag: vm.InstReturnValue, Src: 0},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(fid)
	require.NoError(t, err)
	assert.Equal(t, int64(99), ret.IntValue)
}

func TestUncaughtExceptionPropagates(t *testing.T) {
	p := object.NewProgram()
	_, err := corelib.RegisterErrorClasses(p)
	require.NoError(t, err)

	fid := newFunc(t, p, "f", 0, 3)
	code := []vm.Instruction{
		{Tag: vm.InstSetConst, Dst: 0, Const: object.Int64(1)},
		{Tag: vm.InstSetConst, Dst: 1, Const: object.Int64(0)},
		{Tag: vm.InstBinOp, BinOp: vm.BinModulo, Dst: 2, Src: 0, Src2: 1},
		{Tag: vm.InstReturnValue, Src: 2},
	}

	th := vm.NewThread(p, code)
	_, err = th.Run(fid)
	require.Error(t, err)
	re, ok := err.(*vm.RuntimeError)
	require.True(t, ok)
	assert.Equal(t, classID(t, p, corelib.ClassMathError), re.ClassID)
}

func TestCatchMatchesViaBaseClass(t *testing.T) {
	p := object.NewProgram()
	_, err := corelib.RegisterErrorClasses(p)
	require.NoError(t, err)
	baseErrID := classID(t, p, corelib.ClassError)

	fid := newFunc(t, p, "f", 0, 4)
	code := []vm.Instruction{
		{Tag: vm.InstPushCatchFrame, Dst: 3, CatchJumpTarget: 5},
		{Tag: vm.InstAddCatchType, CatchClassID: baseErrID},
		{Tag: vm.InstSetConst, Dst: 0, Const: object.Int64(0)},
		{Tag: vm.InstBinOp, BinOp: vm.BinDivide, Dst: 1, Src: 0, Src2: 0}, // MathError extends Error
		{Tag: vm.InstReturnValue, Src: 1},
		{Tag: vm.InstJumpTarget},
		{Tag: vm.InstSetConst, Dst: 0, Const: object.Int64(7)},
		{Tag: vm.InstReturnValue, Src: 0},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(fid)
	require.NoError(t, err)
	assert.Equal(t, int64(7), ret.IntValue)
}

func TestConstructAndMemberAccess(t *testing.T) {
	p := object.NewProgram()
	cid, err := p.AddClass("Point", "", "m", "")
	require.NoError(t, err)
	_, err = p.RegisterClassVariable(cid, "x")
	require.NoError(t, err)
	xID := p.Symbols.InternMemberName("x")

	fid := newFunc(t, p, "f", 0, 4)
	code := []vm.Instruction{
		{Tag: vm.InstGetClass, Dst: 0, GlobalID: cid},
		{Tag: vm.InstCall, Dst: 1, CalleeFuncID: -1, CalleeSlot: 0},
		{Tag: vm.InstSetConst, Dst: 2, Const: object.Int64(5)},
		{Tag: vm.InstSetMember, Dst: 1, Src: 2, MemberNameID: xID},
		{Tag: vm.InstGetMember, Dst: 3, Src: 1, MemberNameID: xID},
		{Tag: vm.InstReturnValue, Src: 3},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(fid)
	require.NoError(t, err)
	assert.Equal(t, int64(5), ret.IntValue)
}

func TestStringConcatAndLength(t *testing.T) {
	p := object.NewProgram()
	lengthID := p.WellKnownMethodNameID[object.MethodLength]

	fid := newFunc(t, p, "f", 0, 4)
	code := []vm.Instruction{
		{Tag: vm.InstSetConst, Dst: 0, Const: object.PreallocStr("he")},
		{Tag: vm.InstSetConst, Dst: 1, Const: object.PreallocStr("llo")},
		{Tag: vm.InstBinOp, BinOp: vm.BinAdd, Dst: 2, Src: 0, Src2: 1},
		{Tag: vm.InstGetMember, Dst: 3, Src: 2, MemberNameID: lengthID},
		{Tag: vm.InstReturnValue, Src: 3},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(fid)
	require.NoError(t, err)
	assert.Equal(t, int64(5), ret.IntValue)
}

func TestNativeCall(t *testing.T) {
	p := object.NewProgram()
	doubler, err := p.RegisterCFunction("double", "", "", 1, nil, false,
		func(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
			return object.Int64(args[0].IntValue * 2), nil
		})
	require.NoError(t, err)

	fid := newFunc(t, p, "f", 0, 2)
	code := []vm.Instruction{
		{Tag: vm.InstSetConst, Dst: 0, Const: object.Int64(21)},
		{Tag: vm.InstCall, Dst: 1, CalleeFuncID: doubler, CalleeSlot: -1, ArgSlots: []int64{0}},
		{Tag: vm.InstReturnValue, Src: 1},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(fid)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ret.IntValue)
}

func TestMapPutAndIterateKeys(t *testing.T) {
	p := object.NewProgram()
	fid := newFunc(t, p, "f", 0, 6)
	code := []vm.Instruction{
		{Tag: vm.InstNewMap, Dst: 0},
		{Tag: vm.InstSetConst, Dst: 1, Const: object.Int64(10)},
		{Tag: vm.InstSetConst, Dst: 2, Const: object.Int64(1)},
		{Tag: vm.InstPutMap, Dst: 0, KeySlot: 1, ValueSlot: 2},
		{Tag: vm.InstSetConst, Dst: 1, Const: object.Int64(32)},
		{Tag: vm.InstPutMap, Dst: 0, KeySlot: 1, ValueSlot: 2},
		{Tag: vm.InstSetConst, Dst: 5, Const: object.Int64(0)},
		{Tag: vm.InstNewIterator, Dst: 3, ContainerSlot: 0},
		{Tag: vm.InstJumpTarget},                                       // 8
		{Tag: vm.InstIterate, Dst: 4, Src: 3, JumpTarget: 12},          // 9
		{Tag: vm.InstBinOp, BinOp: vm.BinAdd, Dst: 5, Src: 5, Src2: 4}, // 10
		{Tag: vm.InstJump, JumpTarget: 8},                              // 11
		{Tag: vm.InstJumpTarget},                                       // 12
		{Tag: vm.InstReturnValue, Src: 5},
	}

	th := vm.NewThread(p, code)
	ret, err := th.Run(fid)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ret.IntValue)
}

func classID(t *testing.T, p *object.Program, name string) int64 {
	t.Helper()
	builtin := p.Symbols.Modules[p.Symbols.BuiltinModuleIndex]
	idx, ok := builtin.ClassNameToEntry[name]
	require.True(t, ok, "class %s not registered", name)
	return builtin.ClassSymbols[idx].GlobalID
}
