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
	"fmt"
	"strings"

	"github.com/kestrel-lang/kestrel/pkg/object"
	"github.com/kestrel-lang/kestrel/pkg/vm"
)

// Disassemble renders funcID's instructions, one line per instruction,
// walking the flat stream the same way the interpreter does: from the
// function's entry offset to its final returnvalue.
func Disassemble(p *object.Program, code []vm.Instruction, funcID int64) (*ToolResult, error) {
	if funcID < 0 || int(funcID) >= len(p.Functions) {
		return NewError(fmt.Sprintf("Error: no function with id %d", funcID)), nil
	}
	fn := &p.Functions[funcID]
	if fn.IsNative {
		return NewResult(fmt.Sprintf("%s: native function (no bytecode)\n", fn.Name)), nil
	}
	if fn.InstructionOffset < 0 {
		return NewResult(fmt.Sprintf("%s: not lowered yet\n", fn.Name)), nil
	}

	end := functionEnd(p, code, funcID)
	var out strings.Builder
	fmt.Fprintf(&out, "func %s (id %d, %d slots) @%d:\n", fn.Name, funcID, fn.StackSlotCount, fn.InstructionOffset)
	for pc := fn.InstructionOffset; pc < end; pc++ {
		fmt.Fprintf(&out, "  %5d  %s\n", pc, FormatInstruction(p, &code[pc]))
	}
	return NewResult(out.String()), nil
}

// functionEnd finds where funcID's code stops: the smallest entry offset of
// any other function that lies past this one, or the stream's end.
func functionEnd(p *object.Program, code []vm.Instruction, funcID int64) int64 {
	start := p.Functions[funcID].InstructionOffset
	end := int64(len(code))
	for i := range p.Functions {
		other := p.Functions[i].InstructionOffset
		if int64(i) != funcID && other > start && other < end {
			end = other
		}
	}
	return end
}

// FormatInstruction renders one instruction with its meaningful operands.
func FormatInstruction(p *object.Program, inst *vm.Instruction) string {
	switch inst.Tag {
	case vm.InstSetConst:
		return fmt.Sprintf("setconst   s%d <- %s", inst.Dst, formatConst(inst.Const))
	case vm.InstSetGlobal:
		return fmt.Sprintf("setglobal  g%d <- s%d", inst.GlobalID, inst.Src)
	case vm.InstGetGlobal:
		return fmt.Sprintf("getglobal  s%d <- g%d", inst.Dst, inst.GlobalID)
	case vm.InstGetFunc:
		return fmt.Sprintf("getfunc    s%d <- %s", inst.Dst, funcName(p, inst.GlobalID))
	case vm.InstGetClass:
		return fmt.Sprintf("getclass   s%d <- %s", inst.Dst, className(p, inst.GlobalID))
	case vm.InstValueCopy:
		return fmt.Sprintf("valuecopy  s%d <- s%d", inst.Dst, inst.Src)
	case vm.InstBinOp:
		return fmt.Sprintf("binop      s%d <- s%d op%d s%d", inst.Dst, inst.Src, inst.BinOp, inst.Src2)
	case vm.InstUnOp:
		return fmt.Sprintf("unop       s%d <- op%d s%d", inst.Dst, inst.UnOp, inst.Src)
	case vm.InstCall:
		callee := fmt.Sprintf("s%d", inst.CalleeSlot)
		if inst.CalleeFuncID >= 0 {
			callee = funcName(p, inst.CalleeFuncID)
		}
		return fmt.Sprintf("call       s%d <- %s args=%v", inst.Dst, callee, inst.ArgSlots)
	case vm.InstSetTop:
		return fmt.Sprintf("settop     %d", inst.StackSize)
	case vm.InstReturnValue:
		return fmt.Sprintf("returnvalue s%d", inst.Src)
	case vm.InstJumpTarget:
		return "jumptarget"
	case vm.InstCondJump:
		return fmt.Sprintf("condjump   s%d -> %d", inst.CondSlot, inst.JumpTarget)
	case vm.InstJump:
		return fmt.Sprintf("jump       -> %d", inst.JumpTarget)
	case vm.InstNewIterator:
		return fmt.Sprintf("newiterator s%d <- iter(s%d)", inst.Dst, inst.ContainerSlot)
	case vm.InstIterate:
		return fmt.Sprintf("iterate    s%d <- next(s%d) else -> %d", inst.Dst, inst.Src, inst.JumpTarget)
	case vm.InstPushCatchFrame:
		return fmt.Sprintf("pushcatchframe exc=s%d catch -> %d", inst.Dst, inst.CatchJumpTarget)
	case vm.InstAddCatchType:
		return fmt.Sprintf("addcatchtype %s", className(p, inst.CatchClassID))
	case vm.InstAddCatchTypeByRef:
		return fmt.Sprintf("addcatchtypebyref s%d", inst.CatchClassSlot)
	case vm.InstPopCatchFrame:
		return "popcatchframe"
	case vm.InstGetMember:
		return fmt.Sprintf("getmember  s%d <- s%d.%s", inst.Dst, inst.Src, memberName(p, inst.MemberNameID))
	case vm.InstSetMember:
		return fmt.Sprintf("setmember  s%d.%s <- s%d", inst.Dst, memberName(p, inst.MemberNameID), inst.Src)
	case vm.InstJumpToFinally:
		return "jumptofinally"
	case vm.InstNewList:
		return fmt.Sprintf("newlist    s%d", inst.Dst)
	case vm.InstAddToList:
		return fmt.Sprintf("addtolist  s%d << s%d", inst.Dst, inst.ElemSlot)
	case vm.InstNewSet:
		return fmt.Sprintf("newset     s%d", inst.Dst)
	case vm.InstAddToSet:
		return fmt.Sprintf("addtoset   s%d << s%d", inst.Dst, inst.ElemSlot)
	case vm.InstNewVector:
		return fmt.Sprintf("newvector  s%d [%d]", inst.Dst, inst.Index)
	case vm.InstPutVector:
		return fmt.Sprintf("putvector  s%d[%d] <- s%d", inst.Dst, inst.Index, inst.ElemSlot)
	case vm.InstNewMap:
		return fmt.Sprintf("newmap     s%d", inst.Dst)
	case vm.InstPutMap:
		return fmt.Sprintf("putmap     s%d[s%d] <- s%d", inst.Dst, inst.KeySlot, inst.ValueSlot)
	default:
		return inst.Tag.String()
	}
}

func formatConst(v object.Value) string {
	switch v.Type {
	case object.ValNone:
		return "none"
	case object.ValBool:
		if v.IntValue != 0 {
			return "true"
		}
		return "false"
	case object.ValInt64:
		return fmt.Sprintf("%d", v.IntValue)
	case object.ValFloat64:
		return fmt.Sprintf("%g", v.FloatValue)
	case object.ValConstPreallocStr:
		return fmt.Sprintf("%q", v.StrValue)
	default:
		return v.Type.String()
	}
}

func funcName(p *object.Program, funcID int64) string {
	if sym, ok := p.Symbols.FuncSymbolByID(funcID); ok {
		return fmt.Sprintf("%s(f%d)", sym.Name, funcID)
	}
	return fmt.Sprintf("f%d", funcID)
}

func className(p *object.Program, classID int64) string {
	if sym, ok := p.Symbols.ClassSymbolByID(classID); ok {
		return fmt.Sprintf("%s(c%d)", sym.Name, classID)
	}
	return fmt.Sprintf("c%d", classID)
}

func memberName(p *object.Program, nameID int64) string {
	if name, ok := p.Symbols.MemberNameByID(nameID); ok {
		return name
	}
	return fmt.Sprintf("m%d", nameID)
}
