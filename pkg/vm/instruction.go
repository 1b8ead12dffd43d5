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

package vm

import "github.com/kestrel-lang/kestrel/pkg/object"

// Tag is an instruction's discriminating type tag (spec.md §4.C.1).
type Tag int

const (
	InstInvalid Tag = iota
	InstSetConst
	InstSetGlobal
	InstGetGlobal
	InstGetFunc
	InstGetClass
	InstValueCopy
	InstBinOp
	InstUnOp
	InstCall
	InstSetTop
	InstReturnValue
	InstJumpTarget
	InstCondJump
	InstJump
	InstNewIterator
	InstIterate
	InstPushCatchFrame
	InstAddCatchTypeByRef
	InstAddCatchType
	InstPopCatchFrame
	InstGetMember
	InstJumpToFinally
	InstNewList
	InstAddToList
	InstNewSet
	InstAddToSet
	InstNewVector
	InstPutVector
	InstNewMap
	InstPutMap
	// InstSetMember writes an instance variable by interned name id, the
	// mirror of InstGetMember. Not in the original's enumeration (its member
	// writes go through attribute-index instructions the lowering stage
	// there resolves earlier); this implementation keeps the symmetric
	// name-id form.
	InstSetMember
)

func (t Tag) String() string {
	switch t {
	case InstInvalid:
		return "invalid"
	case InstSetConst:
		return "setconst"
	case InstSetGlobal:
		return "setglobal"
	case InstGetGlobal:
		return "getglobal"
	case InstGetFunc:
		return "getfunc"
	case InstGetClass:
		return "getclass"
	case InstValueCopy:
		return "valuecopy"
	case InstBinOp:
		return "binop"
	case InstUnOp:
		return "unop"
	case InstCall:
		return "call"
	case InstSetTop:
		return "settop"
	case InstReturnValue:
		return "returnvalue"
	case InstJumpTarget:
		return "jumptarget"
	case InstCondJump:
		return "condjump"
	case InstJump:
		return "jump"
	case InstNewIterator:
		return "newiterator"
	case InstIterate:
		return "iterate"
	case InstPushCatchFrame:
		return "pushcatchframe"
	case InstAddCatchTypeByRef:
		return "addcatchtypebyref"
	case InstAddCatchType:
		return "addcatchtype"
	case InstPopCatchFrame:
		return "popcatchframe"
	case InstGetMember:
		return "getmember"
	case InstJumpToFinally:
		return "jumptofinally"
	case InstNewList:
		return "newlist"
	case InstAddToList:
		return "addtolist"
	case InstNewSet:
		return "newset"
	case InstAddToSet:
		return "addtoset"
	case InstNewVector:
		return "newvector"
	case InstPutVector:
		return "putvector"
	case InstNewMap:
		return "newmap"
	case InstPutMap:
		return "putmap"
	case InstSetMember:
		return "setmember"
	default:
		return "invalid"
	}
}

// BinOpKind enumerates the arithmetic/comparison/logical operators BINOP
// covers (spec.md §4.C.2).
type BinOpKind int

const (
	BinAdd BinOpKind = iota
	BinSubtract
	BinMultiply
	BinDivide
	BinModulo
	BinEquals
	BinNotEquals
	BinLess
	BinLessEq
	BinGreater
	BinGreaterEq
	BinAnd
	BinOr
)

// UnOpKind enumerates UNOP's operators.
type UnOpKind int

const (
	UnNegate UnOpKind = iota
	UnNot
)

// Instruction is one fixed-record entry in a function's instruction stream.
// Unlike the original's raw byte buffer decoded by a per-tag size table,
// this is a tagged struct: every field is present for every tag, unused
// fields left zero. A size-from-tag function has no Go equivalent need
// here; the stream is a []Instruction, and "freeing" is ordinary GC.
type Instruction struct {
	Tag Tag

	// SETCONST, VALUECOPY, GETGLOBAL/GETFUNC/GETCLASS/GETMEMBER destination;
	// BINOP/UNOP destination; CALL's return-value destination slot.
	Dst int64
	// VALUECOPY/UNOP/ITERATE source slot; GETMEMBER's object slot.
	Src int64
	// BINOP's second operand slot.
	Src2 int64

	// SETCONST's literal payload.
	Const object.Value

	// SETGLOBAL/GETGLOBAL target global id; GETFUNC target function id;
	// GETCLASS target class id.
	GlobalID int64

	// BINOP/UNOP operator kind.
	BinOp BinOpKind
	UnOp  UnOpKind

	// CALL.
	CalleeSlot     int64 // slot holding the callable, or -1 if CalleeFuncID is set
	CalleeFuncID   int64 // direct call target, or -1 if dispatched via CalleeSlot
	ArgSlots       []int64
	KwargNames     []string
	KwargSlots     []int64
	InputStackSize int64

	// SETTOP/RETURNVALUE.
	StackSize int64

	// JUMP/CONDJUMP target; ITERATE's target once the iterator is exhausted.
	JumpTarget int64
	CondSlot   int64 // CONDJUMP: branch if stack[CondSlot] is falsy

	// NEWITERATOR's container slot (ITERATE reads its iterator from Src).
	ContainerSlot int64

	// PUSHCATCHFRAME/ADDCATCHTYPE/ADDCATCHTYPEBYREF/POPCATCHFRAME.
	CatchJumpTarget  int64
	CatchClassID     int64 // ADDCATCHTYPE
	CatchClassSlot   int64 // ADDCATCHTYPEBYREF
	FinallyTarget    int64
	HasFinallyTarget bool

	// GETMEMBER.
	MemberNameID int64

	// NEWLIST/ADDTOLIST/NEWSET/ADDTOSET/NEWVECTOR/PUTVECTOR/NEWMAP/PUTMAP.
	ElemSlot  int64 // ADDTOLIST/ADDTOSET value; PUTVECTOR value
	KeySlot   int64 // PUTMAP key
	ValueSlot int64 // PUTMAP value
	Index     int64 // PUTVECTOR index
}
