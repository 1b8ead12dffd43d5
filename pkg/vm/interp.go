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

// Package vm executes lowered bytecode: a per-thread dispatch loop over a
// tagged instruction stream, with a value stack, a call-frame stack, catch
// frames for the language's exception mechanism, and a pooled GC-value heap.
package vm

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kestrel-lang/kestrel/pkg/metrics"
	"github.com/kestrel-lang/kestrel/pkg/object"
	"github.com/kestrel-lang/kestrel/pkg/unicode"
)

// RuntimeError is an exception value traversing the call/catch-frame
// stacks. ClassID references Program.Classes; -1 means the error escaped
// before error classes were registered (always fatal).
type RuntimeError struct {
	ClassID int64
	Message string
}

func (e *RuntimeError) Error() string { return e.Message }

// frame records what a RETURNVALUE must restore.
type frame struct {
	returnPC   int64
	returnSlot int64 // absolute stack index for the return value, or -1 to discard
	prevFloor  int64
	catchDepth int // catch frames opened by outer frames; unwound no further on return
}

// catchFrame is one active try-frame (spec.md §3.7).
type catchFrame struct {
	classIDs   []int64
	catchPC    int64
	finallyPC  int64
	hasFinally bool

	// Unwind targets captured at pushcatchframe time.
	frameDepth int
	floor      int64
	stackSize  int64
	excSlot    int64 // absolute stack index receiving the exception instance
}

// Thread is one VM thread: a dispatch loop plus the stack, heap pool and
// globals it owns. Threads share nothing (spec.md §5); a host wanting two
// concurrent interpreters creates two Threads over the same (read-only by
// then) Program.
type Thread struct {
	Program *object.Program
	Code    []Instruction
	Stack   *Stack
	Heap    *Heap
	Globals []object.Value

	frames  []frame
	catches []catchFrame

	instructionsExecuted int64
}

// NewThread creates a thread over a compiled program and its lowered
// instruction stream. Globals start at their compile-time Initial values.
func NewThread(p *object.Program, code []Instruction) *Thread {
	heap := NewHeap()
	t := &Thread{
		Program: p,
		Code:    code,
		Stack:   NewStack(heap),
		Heap:    heap,
		Globals: make([]object.Value, len(p.Globals)),
	}
	for i, g := range p.Globals {
		t.Globals[i] = g.Initial
	}
	return t
}

func (t *Thread) errClassID(name string) int64 {
	builtin := t.Program.Symbols.Modules[t.Program.Symbols.BuiltinModuleIndex]
	if idx, ok := builtin.ClassNameToEntry[name]; ok {
		return builtin.ClassSymbols[idx].GlobalID
	}
	return -1
}

func (t *Thread) raiseNamed(className, format string, args ...any) *RuntimeError {
	return &RuntimeError{ClassID: t.errClassID(className), Message: fmt.Sprintf(format, args...)}
}

// Run executes funcID to completion and returns its return value. A native
// function is invoked directly; a source function enters the dispatch loop.
func (t *Thread) Run(funcID int64, args ...object.Value) (object.Value, error) {
	if funcID < 0 || int(funcID) >= len(t.Program.Functions) {
		return object.None(), fmt.Errorf("vm: invalid function id %d", funcID)
	}
	fn := &t.Program.Functions[funcID]
	if fn.IsNative {
		return fn.Native(args, nil)
	}
	if fn.InstructionOffset < 0 {
		return object.None(), fmt.Errorf("vm: function %d has no lowered code", funcID)
	}

	base := t.Stack.Len()
	if !t.Stack.ToSize(base+int64(fn.StackSlotCount), true) {
		return object.None(), fmt.Errorf("vm: stack overflow entering function %d", funcID)
	}
	for i, a := range args {
		if a.Type == object.ValGCVal {
			t.Heap.IncRefExternal(a.GCHandle)
		}
		t.Stack.Set(base+int64(i), a)
	}
	prevFloor := t.Stack.Floor()
	t.Stack.SetFloor(base)
	t.frames = append(t.frames, frame{returnPC: -1, returnSlot: -1, prevFloor: prevFloor, catchDepth: len(t.catches)})

	ret, err := t.loop(fn.InstructionOffset)
	metrics.InstructionsExecuted.Add(float64(t.instructionsExecuted))
	t.instructionsExecuted = 0
	return ret, err
}

// loop is the dispatch loop: a Go switch on the tag, the target-language
// equivalent of the original's computed-goto jump table. One iteration per
// instruction, no allocation except where the instruction itself constructs
// a heap value.
func (t *Thread) loop(pc int64) (object.Value, error) {
	entryFrames := len(t.frames) - 1
	for {
		if pc < 0 || int(pc) >= len(t.Code) {
			return object.None(), fmt.Errorf("vm: program counter %d out of range", pc)
		}
		inst := &t.Code[pc]
		t.instructionsExecuted++

		var rerr *RuntimeError
		switch inst.Tag {
		case InstSetConst:
			t.execSetConst(inst)
			pc++
		case InstSetGlobal:
			v := t.slot(inst.Src)
			if v.Type == object.ValGCVal {
				t.Heap.IncRefExternal(v.GCHandle)
			}
			if old := t.Globals[inst.GlobalID]; old.Type == object.ValGCVal {
				t.Heap.DecRefExternal(old.GCHandle)
			}
			t.Globals[inst.GlobalID] = v
			pc++
		case InstGetGlobal:
			v := t.Globals[inst.GlobalID]
			if v.Type == object.ValGCVal {
				t.Heap.IncRefExternal(v.GCHandle)
			}
			t.setSlot(inst.Dst, v)
			pc++
		case InstGetFunc:
			t.setSlot(inst.Dst, object.FuncRef(inst.GlobalID))
			pc++
		case InstGetClass:
			t.setSlot(inst.Dst, object.ClassRef(inst.GlobalID))
			pc++
		case InstValueCopy:
			v := t.slot(inst.Src)
			if v.Type == object.ValGCVal {
				t.Heap.IncRefExternal(v.GCHandle)
			}
			t.setSlot(inst.Dst, v)
			pc++
		case InstBinOp:
			rerr = t.execBinOp(inst)
			pc++
		case InstUnOp:
			rerr = t.execUnOp(inst)
			pc++
		case InstCall:
			var nextPC int64
			nextPC, rerr = t.execCall(inst, pc)
			if rerr == nil {
				pc = nextPC
			}
		case InstSetTop:
			if !t.Stack.ToSize(t.Stack.Floor()+inst.StackSize, false) {
				return object.None(), fmt.Errorf("vm: stack overflow at settop")
			}
			pc++
		case InstReturnValue:
			ret := t.slot(inst.Src)
			if ret.Type == object.ValGCVal {
				t.Heap.IncRefExternal(ret.GCHandle)
			}
			fr := t.frames[len(t.frames)-1]
			t.frames = t.frames[:len(t.frames)-1]
			t.catches = t.catches[:fr.catchDepth]
			t.Stack.Shrink(t.Stack.Floor())
			t.Stack.SetFloor(fr.prevFloor)
			if len(t.frames) == entryFrames {
				// Leaving the Run entry frame: the extra count taken above
				// becomes the host's reference once the slot's own count
				// departed with the shrink.
				return ret, nil
			}
			if fr.returnSlot >= 0 {
				t.Stack.Set(fr.returnSlot, ret)
			} else if ret.Type == object.ValGCVal {
				t.Heap.DecRefExternal(ret.GCHandle)
			}
			pc = fr.returnPC
		case InstJumpTarget:
			pc++
		case InstCondJump:
			if !t.slot(inst.CondSlot).IsTruthy() {
				pc = inst.JumpTarget
			} else {
				pc++
			}
		case InstJump:
			pc = inst.JumpTarget
		case InstNewIterator:
			rerr = t.execNewIterator(inst)
			pc++
		case InstIterate:
			var exhausted bool
			exhausted, rerr = t.execIterate(inst)
			if rerr == nil {
				if exhausted {
					pc = inst.JumpTarget
				} else {
					pc++
				}
			}
		case InstPushCatchFrame:
			t.catches = append(t.catches, catchFrame{
				catchPC:    inst.CatchJumpTarget,
				finallyPC:  inst.FinallyTarget,
				hasFinally: inst.HasFinallyTarget,
				frameDepth: len(t.frames),
				floor:      t.Stack.Floor(),
				stackSize:  t.Stack.Len(),
				excSlot:    t.Stack.Floor() + inst.Dst,
			})
			pc++
		case InstAddCatchType:
			cf := &t.catches[len(t.catches)-1]
			cf.classIDs = append(cf.classIDs, inst.CatchClassID)
			pc++
		case InstAddCatchTypeByRef:
			ref := t.slot(inst.CatchClassSlot)
			if ref.Type != object.ValClassRef {
				rerr = t.raiseNamed("TypeError", "catch type is not a class")
			} else {
				cf := &t.catches[len(t.catches)-1]
				cf.classIDs = append(cf.classIDs, ref.IntValue)
				pc++
			}
		case InstPopCatchFrame:
			t.catches = t.catches[:len(t.catches)-1]
			pc++
		case InstGetMember:
			rerr = t.execGetMember(inst)
			pc++
		case InstSetMember:
			rerr = t.execSetMember(inst)
			pc++
		case InstJumpToFinally:
			cf := &t.catches[len(t.catches)-1]
			if !cf.hasFinally {
				return object.None(), fmt.Errorf("vm: jumptofinally without finally target")
			}
			pc = cf.finallyPC
		case InstNewList, InstNewSet, InstNewVector, InstNewMap:
			t.execNewContainer(inst)
			pc++
		case InstAddToList, InstAddToSet, InstPutVector, InstPutMap:
			rerr = t.execContainerPut(inst)
			pc++
		case InstInvalid:
			return object.None(), fmt.Errorf("vm: invalid instruction at %d", pc)
		default:
			return object.None(), fmt.Errorf("vm: unknown instruction tag %d at %d", inst.Tag, pc)
		}

		if rerr != nil {
			var handled bool
			pc, handled = t.dispatchException(rerr, entryFrames)
			if !handled {
				return object.None(), rerr
			}
		}
	}
}

func (t *Thread) slot(rel int64) object.Value {
	return t.Stack.Get(t.Stack.Floor() + rel)
}

func (t *Thread) setSlot(rel int64, v object.Value) {
	t.Stack.Set(t.Stack.Floor()+rel, v)
}

// execSetConst implements spec.md §4.C.2's setconst contract: free the
// existing slot; a preallocated string materializes into a fresh heap string
// with external refcount 1; any other literal copies by value, bumping the
// external refcount if it is a GC reference.
func (t *Thread) execSetConst(inst *Instruction) {
	c := inst.Const
	if c.Type == object.ValConstPreallocStr {
		handle := t.Heap.AllocString(c.StrValue)
		t.setSlot(inst.Dst, object.GCVal(handle))
		return
	}
	if c.Type == object.ValGCVal {
		t.Heap.IncRefExternal(c.GCHandle)
	}
	t.setSlot(inst.Dst, c)
}

func (t *Thread) execBinOp(inst *Instruction) *RuntimeError {
	a := t.slot(inst.Src)
	b := t.slot(inst.Src2)

	switch inst.BinOp {
	case BinAnd:
		t.setSlot(inst.Dst, object.Bool(a.IsTruthy() && b.IsTruthy()))
		return nil
	case BinOr:
		t.setSlot(inst.Dst, object.Bool(a.IsTruthy() || b.IsTruthy()))
		return nil
	case BinEquals:
		t.setSlot(inst.Dst, object.Bool(t.Heap.ValueEquals(a, b)))
		return nil
	case BinNotEquals:
		t.setSlot(inst.Dst, object.Bool(!t.Heap.ValueEquals(a, b)))
		return nil
	}

	if as, bs, ok := t.twoStrings(a, b); ok {
		switch inst.BinOp {
		case BinAdd:
			t.setSlot(inst.Dst, object.GCVal(t.Heap.AllocString(as+bs)))
		case BinLess:
			t.setSlot(inst.Dst, object.Bool(as < bs))
		case BinLessEq:
			t.setSlot(inst.Dst, object.Bool(as <= bs))
		case BinGreater:
			t.setSlot(inst.Dst, object.Bool(as > bs))
		case BinGreaterEq:
			t.setSlot(inst.Dst, object.Bool(as >= bs))
		default:
			return t.raiseNamed("TypeError", "operator not defined on strings")
		}
		return nil
	}

	if !isNumeric(a) || !isNumeric(b) {
		return t.raiseNamed("TypeError", "binary operator on %s and %s", a.Type, b.Type)
	}

	if a.Type == object.ValFloat64 || b.Type == object.ValFloat64 {
		x, y := toFloat(a), toFloat(b)
		switch inst.BinOp {
		case BinAdd:
			t.setSlot(inst.Dst, object.Float64(x+y))
		case BinSubtract:
			t.setSlot(inst.Dst, object.Float64(x-y))
		case BinMultiply:
			t.setSlot(inst.Dst, object.Float64(x*y))
		case BinDivide:
			if y == 0 {
				return t.raiseNamed("MathError", "division by zero")
			}
			t.setSlot(inst.Dst, object.Float64(x/y))
		case BinModulo:
			return t.raiseNamed("TypeError", "modulo on float operands")
		case BinLess:
			t.setSlot(inst.Dst, object.Bool(x < y))
		case BinLessEq:
			t.setSlot(inst.Dst, object.Bool(x <= y))
		case BinGreater:
			t.setSlot(inst.Dst, object.Bool(x > y))
		case BinGreaterEq:
			t.setSlot(inst.Dst, object.Bool(x >= y))
		}
		return nil
	}

	x, y := a.IntValue, b.IntValue
	switch inst.BinOp {
	case BinAdd:
		t.setSlot(inst.Dst, object.Int64(x+y))
	case BinSubtract:
		t.setSlot(inst.Dst, object.Int64(x-y))
	case BinMultiply:
		t.setSlot(inst.Dst, object.Int64(x*y))
	case BinDivide:
		if y == 0 {
			return t.raiseNamed("MathError", "division by zero")
		}
		t.setSlot(inst.Dst, object.Int64(x/y))
	case BinModulo:
		if y == 0 {
			return t.raiseNamed("MathError", "modulo by zero")
		}
		t.setSlot(inst.Dst, object.Int64(x%y))
	case BinLess:
		t.setSlot(inst.Dst, object.Bool(x < y))
	case BinLessEq:
		t.setSlot(inst.Dst, object.Bool(x <= y))
	case BinGreater:
		t.setSlot(inst.Dst, object.Bool(x > y))
	case BinGreaterEq:
		t.setSlot(inst.Dst, object.Bool(x >= y))
	}
	return nil
}

func (t *Thread) twoStrings(a, b object.Value) (string, string, bool) {
	as, aok := t.stringOf(a)
	bs, bok := t.stringOf(b)
	return as, bs, aok && bok
}

func (t *Thread) stringOf(v object.Value) (string, bool) {
	if v.Type != object.ValGCVal {
		return "", false
	}
	gv, err := t.Heap.Get(v.GCHandle)
	if err != nil || gv.Type != GCString {
		return "", false
	}
	return gv.Str, true
}

func isNumeric(v object.Value) bool {
	return v.Type == object.ValInt64 || v.Type == object.ValFloat64 || v.Type == object.ValBool
}

func toFloat(v object.Value) float64 {
	if v.Type == object.ValFloat64 {
		return v.FloatValue
	}
	return float64(v.IntValue)
}

func (t *Thread) execUnOp(inst *Instruction) *RuntimeError {
	v := t.slot(inst.Src)
	switch inst.UnOp {
	case UnNegate:
		switch v.Type {
		case object.ValInt64:
			t.setSlot(inst.Dst, object.Int64(-v.IntValue))
		case object.ValFloat64:
			t.setSlot(inst.Dst, object.Float64(-v.FloatValue))
		default:
			return t.raiseNamed("TypeError", "negation of %s", v.Type)
		}
	case UnNot:
		t.setSlot(inst.Dst, object.Bool(!v.IsTruthy()))
	}
	return nil
}

// execCall implements CALL's frame entry (spec.md §4.C.2): allocate the
// callee's slots above the current top, copy arguments in, push a frame
// remembering the caller's floor and return slot, and continue at the
// callee's first instruction. Native callees never enter the loop; their
// arguments are exported to inline values first (heap strings become
// prealloc-string payloads) so natives stay heap-agnostic.
func (t *Thread) execCall(inst *Instruction, pc int64) (int64, *RuntimeError) {
	callee := inst.CalleeFuncID
	if callee < 0 {
		cv := t.slot(inst.CalleeSlot)
		switch cv.Type {
		case object.ValFuncRef:
			callee = cv.IntValue
		case object.ValClassRef:
			return t.execConstruct(inst, pc, cv.IntValue)
		default:
			return 0, t.raiseNamed("TypeError", "value of type %s is not callable", cv.Type)
		}
	}
	if callee < 0 || int(callee) >= len(t.Program.Functions) {
		return 0, t.raiseNamed("RuntimeError", "call to invalid function id %d", callee)
	}
	fn := &t.Program.Functions[callee]

	// A method call carries the receiver as the first arg slot; peel it off
	// so ArgCount (which never includes self) checks out.
	argSlots := inst.ArgSlots
	var instanceSelf object.Value
	if fn.HasSelfArg {
		if len(argSlots) == 0 {
			return 0, t.raiseNamed("ArgumentError", "method %q called without a receiver", fn.Name)
		}
		instanceSelf = t.slot(argSlots[0])
		argSlots = argSlots[1:]
	}

	if fn.IsNative {
		args := make([]object.Value, 0, len(argSlots))
		for _, s := range argSlots {
			args = append(args, t.exportValue(t.slot(s)))
		}
		var kwargs map[string]object.Value
		if len(inst.KwargNames) > 0 {
			kwargs = make(map[string]object.Value, len(inst.KwargNames))
			for i, name := range inst.KwargNames {
				kwargs[name] = t.exportValue(t.slot(inst.KwargSlots[i]))
			}
		}
		ret, err := fn.Native(args, kwargs)
		if err != nil {
			if re, ok := err.(*RuntimeError); ok {
				return 0, re
			}
			return 0, t.raiseNamed("RuntimeError", "%s", err.Error())
		}
		t.setSlot(inst.Dst, t.importValue(ret))
		return pc + 1, nil
	}

	// Positional arity: parameters with defaults (ArgKwargNames) may be
	// omitted; their slots stay none and the callee's prologue fills the
	// default.
	required := fn.ArgCount - len(fn.ArgKwargNames)
	if len(argSlots) < required || (len(argSlots) > fn.ArgCount && !fn.LastArgIsMultiArg) {
		return 0, t.raiseNamed("ArgumentError", "function %q takes %d arguments, got %d",
			fn.Name, fn.ArgCount, len(argSlots))
	}

	selfCount := 0
	if fn.HasSelfArg {
		selfCount = 1
	}
	base := t.Stack.Len()
	slots := int64(fn.StackSlotCount)
	if min := int64(len(argSlots) + selfCount); slots < min {
		slots = min
	}
	if !t.Stack.ToSize(base+slots, true) {
		return 0, t.raiseNamed("RuntimeError", "stack overflow calling %q", fn.Name)
	}

	argBase := base
	if fn.HasSelfArg {
		if instanceSelf.Type == object.ValGCVal {
			t.Heap.IncRefExternal(instanceSelf.GCHandle)
		}
		t.Stack.Set(base, instanceSelf)
		argBase = base + 1
	}
	for i, s := range argSlots {
		v := t.slot(s)
		if v.Type == object.ValGCVal {
			t.Heap.IncRefExternal(v.GCHandle)
		}
		t.Stack.Set(argBase+int64(i), v)
	}

	// Keyword arguments land in the slot of the matching defaulted
	// parameter; defaulted parameters occupy the tail of the argument list.
	for i, name := range inst.KwargNames {
		paramIdx := -1
		for j, kn := range fn.ArgKwargNames {
			if kn == name {
				paramIdx = required + j
				break
			}
		}
		if paramIdx < 0 {
			return 0, t.raiseNamed("ArgumentError", "function %q has no keyword argument %q", fn.Name, name)
		}
		v := t.slot(inst.KwargSlots[i])
		if v.Type == object.ValGCVal {
			t.Heap.IncRefExternal(v.GCHandle)
		}
		t.Stack.Set(argBase+int64(paramIdx), v)
	}

	t.frames = append(t.frames, frame{
		returnPC:   pc + 1,
		returnSlot: t.Stack.Floor() + inst.Dst,
		prevFloor:  t.Stack.Floor(),
		catchDepth: len(t.catches),
	})
	t.Stack.SetFloor(base)
	return fn.InstructionOffset, nil
}

// execConstruct implements CALL on a class reference: allocate an instance
// with one field per variable in the class and its base chain, then chain
// the synthesized $$varinit (if any) and init method as ordinary frames so
// field initializers and the constructor run before the caller resumes.
func (t *Thread) execConstruct(inst *Instruction, pc int64, classID int64) (int64, *RuntimeError) {
	if classID < 0 || int(classID) >= len(t.Program.Classes) {
		return 0, t.raiseNamed("RuntimeError", "construction of invalid class id %d", classID)
	}
	fieldCount := int64(len(t.Program.Classes[classID].VarNameIDs))
	for _, base := range t.Program.BaseClasses(classID) {
		fieldCount += int64(len(t.Program.Classes[base].VarNameIDs))
	}

	handle := t.Heap.Alloc(GCInstance)
	gv, _ := t.Heap.Get(handle)
	gv.InstanceClassID = classID
	gv.InstanceFields = make([]object.Value, fieldCount)
	self := object.GCVal(handle)
	t.setSlot(inst.Dst, self)

	nextPC := pc + 1
	// Frames run LIFO: push init first so $$varinit (pushed second, popped
	// first) populates fields before init observes them.
	if _, _, initID, ok := t.Program.ResolveMethod(classID, object.MethodInit); ok && initID >= 0 {
		var err *RuntimeError
		nextPC, err = t.pushMethodFrame(initID, self, inst.ArgSlots, nextPC)
		if err != nil {
			return 0, err
		}
	} else if len(inst.ArgSlots) > 0 {
		return 0, t.raiseNamed("ArgumentError", "class takes no constructor arguments")
	}
	if t.Program.Classes[classID].HasVarInitFunc {
		if _, _, varInitID, ok := t.Program.ResolveMethod(classID, "$$varinit"); ok && varInitID >= 0 {
			var err *RuntimeError
			nextPC, err = t.pushMethodFrame(varInitID, self, nil, nextPC)
			if err != nil {
				return 0, err
			}
		}
	}
	return nextPC, nil
}

func (t *Thread) pushMethodFrame(funcID int64, self object.Value, argSlots []int64, returnPC int64) (int64, *RuntimeError) {
	fn := &t.Program.Functions[funcID]
	callerFloor := t.Stack.Floor()

	base := t.Stack.Len()
	slots := int64(fn.StackSlotCount)
	if min := int64(len(argSlots) + 1); slots < min {
		slots = min
	}
	if !t.Stack.ToSize(base+slots, true) {
		return 0, t.raiseNamed("RuntimeError", "stack overflow calling %q", fn.Name)
	}
	if self.Type == object.ValGCVal {
		t.Heap.IncRefExternal(self.GCHandle)
	}
	t.Stack.Set(base, self)
	for i, s := range argSlots {
		v := t.Stack.Get(callerFloor + s)
		if v.Type == object.ValGCVal {
			t.Heap.IncRefExternal(v.GCHandle)
		}
		t.Stack.Set(base+int64(i)+1, v)
	}

	t.frames = append(t.frames, frame{
		returnPC:   returnPC,
		returnSlot: -1,
		prevFloor:  callerFloor,
		catchDepth: len(t.catches),
	})
	t.Stack.SetFloor(base)
	return fn.InstructionOffset, nil
}

// exportValue converts a stack value into a heap-independent one for a
// native callee: heap strings become inline prealloc-string payloads; other
// heap values pass the raw handle through.
func (t *Thread) exportValue(v object.Value) object.Value {
	if s, ok := t.stringOf(v); ok {
		return object.PreallocStr(s)
	}
	return v
}

// importValue inverts exportValue for a native's return value.
func (t *Thread) importValue(v object.Value) object.Value {
	if v.Type == object.ValConstPreallocStr {
		return object.GCVal(t.Heap.AllocString(v.StrValue))
	}
	return v
}

func (t *Thread) execNewIterator(inst *Instruction) *RuntimeError {
	cv := t.slot(inst.ContainerSlot)
	if cv.Type != object.ValGCVal {
		return t.raiseNamed("TypeError", "cannot iterate %s", cv.Type)
	}
	gv, err := t.Heap.Get(cv.GCHandle)
	if err != nil {
		return t.raiseNamed("RuntimeError", "%s", err.Error())
	}
	switch gv.Type {
	case GCList, GCSet, GCVector, GCMap, GCString:
	default:
		return t.raiseNamed("TypeError", "cannot iterate this heap value")
	}
	handle := t.Heap.Alloc(GCIterator)
	iter, _ := t.Heap.Get(handle)
	iter.IterContainer = cv.GCHandle
	t.Heap.IncRefHeap(cv.GCHandle)
	t.setSlot(inst.Dst, object.GCVal(handle))
	return nil
}

func (t *Thread) execIterate(inst *Instruction) (bool, *RuntimeError) {
	iv := t.slot(inst.Src)
	iter, err := t.Heap.Get(iv.GCHandle)
	if iv.Type != object.ValGCVal || err != nil || iter.Type != GCIterator {
		return false, t.raiseNamed("TypeError", "iterate on a non-iterator")
	}
	container, err := t.Heap.Get(iter.IterContainer)
	if err != nil {
		return false, t.raiseNamed("RuntimeError", "%s", err.Error())
	}

	var next object.Value
	switch container.Type {
	case GCList, GCSet, GCVector:
		if iter.IterPos >= int64(len(container.Elems)) {
			return true, nil
		}
		next = container.Elems[iter.IterPos]
		iter.IterPos++
	case GCMap:
		if iter.IterPos >= int64(len(container.MapKeys)) {
			return true, nil
		}
		next = container.MapKeys[iter.IterPos]
		iter.IterPos++
	case GCString:
		rest := []byte(container.Str)[iter.IterPos:]
		if len(rest) == 0 {
			return true, nil
		}
		cp, n := unicode.DecodeRune(rest)
		iter.IterPos += int64(n)
		next = object.GCVal(t.Heap.AllocString(string(unicode.EncodeRune(nil, cp))))
		t.setSlot(inst.Dst, next)
		return false, nil
	}
	if next.Type == object.ValGCVal {
		t.Heap.IncRefExternal(next.GCHandle)
	}
	t.setSlot(inst.Dst, next)
	return false, nil
}

func (t *Thread) execGetMember(inst *Instruction) *RuntimeError {
	obj := t.slot(inst.Src)
	if obj.Type != object.ValGCVal {
		return t.raiseNamed("TypeError", "member access on %s", obj.Type)
	}
	gv, err := t.Heap.Get(obj.GCHandle)
	if err != nil {
		return t.raiseNamed("RuntimeError", "%s", err.Error())
	}

	lengthID := t.Program.WellKnownMethodNameID[object.MethodLength]
	if inst.MemberNameID == lengthID {
		switch gv.Type {
		case GCString:
			t.setSlot(inst.Dst, object.Int64(int64(len(unicode.ToUTF32([]byte(gv.Str))))))
			return nil
		case GCList, GCSet, GCVector:
			t.setSlot(inst.Dst, object.Int64(int64(len(gv.Elems))))
			return nil
		case GCMap:
			t.setSlot(inst.Dst, object.Int64(int64(len(gv.MapKeys))))
			return nil
		}
	}

	if gv.Type != GCInstance {
		name, _ := t.Program.Symbols.MemberNameByID(inst.MemberNameID)
		return t.raiseNamed("AttributeError", "no member %q on this value", name)
	}

	ownerID, varID, funcID, ok := t.resolveMemberByID(gv.InstanceClassID, inst.MemberNameID)
	if !ok {
		name, _ := t.Program.Symbols.MemberNameByID(inst.MemberNameID)
		return t.raiseNamed("AttributeError", "no member %q on class instance", name)
	}
	if funcID >= 0 {
		t.setSlot(inst.Dst, object.FuncRef(funcID))
		return nil
	}
	idx := t.fieldOffset(gv.InstanceClassID, ownerID) + varID
	v := gv.InstanceFields[idx]
	if v.Type == object.ValGCVal {
		t.Heap.IncRefExternal(v.GCHandle)
	}
	t.setSlot(inst.Dst, v)
	return nil
}

// execSetMember writes an instance variable by interned name id. Methods
// cannot be assigned through it.
func (t *Thread) execSetMember(inst *Instruction) *RuntimeError {
	obj := t.slot(inst.Dst)
	if obj.Type != object.ValGCVal {
		return t.raiseNamed("TypeError", "member assignment on %s", obj.Type)
	}
	gv, err := t.Heap.Get(obj.GCHandle)
	if err != nil || gv.Type != GCInstance {
		return t.raiseNamed("TypeError", "member assignment on a non-instance")
	}
	ownerID, varID, funcID, ok := t.resolveMemberByID(gv.InstanceClassID, inst.MemberNameID)
	if !ok || funcID >= 0 {
		name, _ := t.Program.Symbols.MemberNameByID(inst.MemberNameID)
		return t.raiseNamed("AttributeError", "no assignable member %q on class instance", name)
	}
	idx := t.fieldOffset(gv.InstanceClassID, ownerID) + varID
	v := t.slot(inst.Src)
	if v.Type == object.ValGCVal {
		t.Heap.IncRefHeap(v.GCHandle)
	}
	if old := gv.InstanceFields[idx]; old.Type == object.ValGCVal {
		t.Heap.DecRefHeap(old.GCHandle)
	}
	gv.InstanceFields[idx] = v
	return nil
}

// resolveMemberByID is ResolveMethod keyed by an already-interned name id,
// which is what getmember carries.
func (t *Thread) resolveMemberByID(classID, nameID int64) (ownerClassID, varID, funcID int64, ok bool) {
	for _, cid := range append([]int64{classID}, t.Program.BaseClasses(classID)...) {
		v, f := t.Program.LookupClassMember(cid, nameID)
		if v >= 0 || f >= 0 {
			return cid, v, f, true
		}
	}
	return -1, -1, -1, false
}

// fieldOffset positions ownerClassID's variables within an instance of
// classID: base-most class fields first.
func (t *Thread) fieldOffset(classID, ownerClassID int64) int64 {
	var off int64
	for _, base := range t.Program.BaseClasses(ownerClassID) {
		off += int64(len(t.Program.Classes[base].VarNameIDs))
	}
	return off
}

func (t *Thread) execNewContainer(inst *Instruction) {
	var gt GCValueType
	switch inst.Tag {
	case InstNewList:
		gt = GCList
	case InstNewSet:
		gt = GCSet
	case InstNewVector:
		gt = GCVector
	case InstNewMap:
		gt = GCMap
	}
	handle := t.Heap.Alloc(gt)
	if inst.Tag == InstNewVector {
		gv, _ := t.Heap.Get(handle)
		gv.Elems = make([]object.Value, inst.Index)
	}
	t.setSlot(inst.Dst, object.GCVal(handle))
}

func (t *Thread) execContainerPut(inst *Instruction) *RuntimeError {
	cv := t.slot(inst.Dst)
	if cv.Type != object.ValGCVal {
		return t.raiseNamed("TypeError", "container operation on %s", cv.Type)
	}
	gv, err := t.Heap.Get(cv.GCHandle)
	if err != nil {
		return t.raiseNamed("RuntimeError", "%s", err.Error())
	}

	retain := func(v object.Value) object.Value {
		if v.Type == object.ValGCVal {
			t.Heap.IncRefHeap(v.GCHandle)
		}
		return v
	}

	switch inst.Tag {
	case InstAddToList:
		if gv.Type != GCList {
			return t.raiseNamed("TypeError", "addtolist on a non-list")
		}
		gv.Elems = append(gv.Elems, retain(t.slot(inst.ElemSlot)))
	case InstAddToSet:
		if gv.Type != GCSet {
			return t.raiseNamed("TypeError", "addtoset on a non-set")
		}
		v := t.slot(inst.ElemSlot)
		for _, e := range gv.Elems {
			if t.Heap.ValueEquals(e, v) {
				return nil
			}
		}
		gv.Elems = append(gv.Elems, retain(v))
	case InstPutVector:
		if gv.Type != GCVector {
			return t.raiseNamed("TypeError", "putvector on a non-vector")
		}
		if inst.Index < 0 || inst.Index >= int64(len(gv.Elems)) {
			return t.raiseNamed("IndexError", "vector index %d out of range", inst.Index)
		}
		if old := gv.Elems[inst.Index]; old.Type == object.ValGCVal {
			t.Heap.DecRefHeap(old.GCHandle)
		}
		gv.Elems[inst.Index] = retain(t.slot(inst.ElemSlot))
	case InstPutMap:
		if gv.Type != GCMap {
			return t.raiseNamed("TypeError", "putmap on a non-map")
		}
		key := t.slot(inst.KeySlot)
		val := t.slot(inst.ValueSlot)
		for i, k := range gv.MapKeys {
			if t.Heap.ValueEquals(k, key) {
				if old := gv.MapValues[i]; old.Type == object.ValGCVal {
					t.Heap.DecRefHeap(old.GCHandle)
				}
				gv.MapValues[i] = retain(val)
				return nil
			}
		}
		gv.MapKeys = append(gv.MapKeys, retain(key))
		gv.MapValues = append(gv.MapValues, retain(val))
	}
	return nil
}

// dispatchException unwinds to the nearest catch frame whose type list
// matches err's class exactly or via the base-class chain (spec.md §7.3).
// The boolean result is false when no catch frame within this Run
// invocation matches, in which case the caller propagates err to the host.
func (t *Thread) dispatchException(err *RuntimeError, entryFrames int) (int64, bool) {
	for len(t.catches) > 0 {
		cf := t.catches[len(t.catches)-1]
		t.catches = t.catches[:len(t.catches)-1]
		if cf.frameDepth <= entryFrames {
			// The frame belongs to an outer Run invocation; restore it and
			// give up.
			t.catches = append(t.catches, cf)
			break
		}
		if len(cf.classIDs) > 0 && !t.classMatches(err.ClassID, cf.classIDs) {
			continue
		}

		t.frames = t.frames[:cf.frameDepth]
		t.Stack.Shrink(cf.stackSize)
		t.Stack.SetFloor(cf.floor)

		handle := t.Heap.Alloc(GCInstance)
		gv, _ := t.Heap.Get(handle)
		gv.InstanceClassID = err.ClassID
		msg := object.GCVal(t.Heap.AllocString(err.Message))
		t.Heap.IncRefHeap(msg.GCHandle)
		t.Heap.DecRefExternal(msg.GCHandle)
		gv.InstanceFields = []object.Value{msg}
		t.Stack.Set(cf.excSlot, object.GCVal(handle))

		return cf.catchPC, true
	}
	// Unwind this Run invocation's frames entirely before reporting.
	for len(t.frames) > entryFrames {
		fr := t.frames[len(t.frames)-1]
		t.frames = t.frames[:len(t.frames)-1]
		t.Stack.Shrink(t.Stack.Floor())
		t.Stack.SetFloor(fr.prevFloor)
	}
	return 0, false
}

func (t *Thread) classMatches(errClassID int64, caught []int64) bool {
	if errClassID < 0 {
		return false
	}
	chain := append([]int64{errClassID}, t.Program.BaseClasses(errClassID)...)
	for _, want := range caught {
		for _, have := range chain {
			if have == want {
				return true
			}
		}
	}
	return false
}

// ExecuteProgram implements spec.md §4.C.4: run the global init function if
// present, then main, on a single fresh thread. An uncaught exception prints
// "Uncaught {class_name}" to stderr, followed by ": {message}" when the
// exception carries a message, and yields a nonzero exit code.
func ExecuteProgram(p *object.Program, code []Instruction) int {
	return executeProgram(p, code, os.Stderr)
}

func executeProgram(p *object.Program, code []Instruction, stderr io.Writer) int {
	t := NewThread(p, code)

	if p.GlobalInitFuncID >= 0 {
		if _, err := t.Run(p.GlobalInitFuncID); err != nil {
			reportUncaught(p, err, stderr)
			return 1
		}
	}
	if p.MainFuncID < 0 {
		fmt.Fprintln(stderr, "no main function")
		return 1
	}
	if _, err := t.Run(p.MainFuncID); err != nil {
		reportUncaught(p, err, stderr)
		return 1
	}
	return 0
}

func reportUncaught(p *object.Program, err error, stderr io.Writer) {
	re, ok := err.(*RuntimeError)
	if !ok {
		fmt.Fprintf(stderr, "fatal: %s\n", err.Error())
		return
	}
	className := "Error"
	if sym, found := p.Symbols.ClassSymbolByID(re.ClassID); found {
		className = sym.Name
	}
	msg := strings.TrimSpace(re.Message)
	if msg != "" {
		fmt.Fprintf(stderr, "Uncaught %s: %s\n", className, msg)
	} else {
		fmt.Fprintf(stderr, "Uncaught %s\n", className)
	}
}
