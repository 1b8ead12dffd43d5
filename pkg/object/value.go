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

// Package object implements the program object model: the mutable,
// incrementally populated registry of every function, class, global and
// debug symbol in a compiled program.
package object

// ValueType tags the variant carried by a Value.
type ValueType int

const (
	// ValNone is the absence of a value.
	ValNone ValueType = iota
	// ValBool carries a 0/1 integer in IntValue.
	ValBool
	// ValInt64 carries a signed 64-bit integer in IntValue.
	ValInt64
	// ValFloat64 carries a float in FloatValue.
	ValFloat64
	// ValGCVal is an owning reference into a VM thread's heap pool. GCHandle
	// is an opaque index; the heap itself lives in package vm, which is the
	// only place that dereferences it.
	ValGCVal
	// ValConstPreallocStr is an inline string payload embedded in a setconst
	// instruction. It is materialized into a heap string when executed and
	// is never itself stored in a stack slot.
	ValConstPreallocStr
	// ValFuncRef references Program.Functions by id (IntValue). Produced by
	// the getfunc instruction and by member lookup of a method.
	ValFuncRef
	// ValClassRef references Program.Classes by id (IntValue). Produced by
	// the getclass instruction.
	ValClassRef
)

func (t ValueType) String() string {
	switch t {
	case ValNone:
		return "none"
	case ValBool:
		return "bool"
	case ValInt64:
		return "int64"
	case ValFloat64:
		return "float64"
	case ValGCVal:
		return "gcval"
	case ValConstPreallocStr:
		return "constpreallocstr"
	case ValFuncRef:
		return "funcref"
	case ValClassRef:
		return "classref"
	default:
		return "invalid"
	}
}

// Value is the tagged value used by globals, constant instruction payloads,
// and (by package vm) the interpreter's value stack.
//
// Ownership: a Value owns any inline allocation it carries (StrValue for a
// ValConstPreallocStr) and any external reference count bumped on a heap
// value (GCHandle for a ValGCVal). Only one field of {IntValue, FloatValue,
// GCHandle, StrValue} is meaningful for a given Type.
type Value struct {
	Type       ValueType
	IntValue   int64
	FloatValue float64
	GCHandle   int64
	StrValue   string
}

// None returns the none value.
func None() Value { return Value{Type: ValNone} }

// Bool returns a bool value.
func Bool(b bool) Value {
	v := int64(0)
	if b {
		v = 1
	}
	return Value{Type: ValBool, IntValue: v}
}

// Int64 returns an int64 value.
func Int64(i int64) Value { return Value{Type: ValInt64, IntValue: i} }

// Float64 returns a float64 value.
func Float64(f float64) Value { return Value{Type: ValFloat64, FloatValue: f} }

// GCVal returns a value referencing a heap handle. The caller is
// responsible for having bumped the handle's external refcount.
func GCVal(handle int64) Value { return Value{Type: ValGCVal, GCHandle: handle} }

// PreallocStr returns an embedded string payload for a setconst instruction.
func PreallocStr(s string) Value { return Value{Type: ValConstPreallocStr, StrValue: s} }

// FuncRef returns a value referencing a registered function by id.
func FuncRef(funcID int64) Value { return Value{Type: ValFuncRef, IntValue: funcID} }

// ClassRef returns a value referencing a registered class by id.
func ClassRef(classID int64) Value { return Value{Type: ValClassRef, IntValue: classID} }

// IsTruthy implements the interpreter's notion of truthiness for condjump.
func (v Value) IsTruthy() bool {
	switch v.Type {
	case ValNone:
		return false
	case ValBool, ValInt64:
		return v.IntValue != 0
	case ValFloat64:
		return v.FloatValue != 0
	default:
		return true
	}
}
