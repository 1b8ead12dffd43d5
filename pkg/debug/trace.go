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

// TraceCallsArgs holds arguments for static call tracing.
type TraceCallsArgs struct {
	Function string
	MaxDepth int
}

const defaultTraceDepth = 6

// TraceCalls renders the static call tree reachable from a function: the
// direct-call targets found in each function's instruction stream, walked
// depth-first with a cycle guard and a depth limit. Indirect calls through
// a value slot appear as "(dynamic)" leaves.
func TraceCalls(p *object.Program, code []vm.Instruction, args TraceCallsArgs) (*ToolResult, error) {
	if args.Function == "" {
		return NewError("Error: 'function' name is required"), nil
	}
	if args.MaxDepth <= 0 {
		args.MaxDepth = defaultTraceDepth
	}

	funcID, ok := FindFunction(p, args.Function)
	if !ok {
		return NewResult(fmt.Sprintf("Function %q not found.", args.Function)), nil
	}

	var out strings.Builder
	visited := make(map[int64]bool)
	traceFrom(p, code, funcID, 0, args.MaxDepth, visited, &out)
	return NewResult(out.String()), nil
}

func traceFrom(p *object.Program, code []vm.Instruction, funcID int64, depth, maxDepth int, visited map[int64]bool, out *strings.Builder) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(out, "%s%s\n", indent, funcName(p, funcID))

	if depth >= maxDepth {
		fmt.Fprintf(out, "%s  ... (depth limit)\n", indent)
		return
	}
	if visited[funcID] {
		fmt.Fprintf(out, "%s  ... (cycle)\n", indent)
		return
	}
	visited[funcID] = true
	defer delete(visited, funcID)

	callees, dynamic := directCallees(p, code, funcID)
	for _, callee := range callees {
		traceFrom(p, code, callee, depth+1, maxDepth, visited, out)
	}
	if dynamic > 0 {
		fmt.Fprintf(out, "%s  (dynamic: %d call sites through value slots)\n", indent, dynamic)
	}
}

// directCallees scans funcID's instruction range for call instructions,
// returning the distinct direct targets in first-seen order plus the count
// of dynamic (slot-dispatched) call sites.
func directCallees(p *object.Program, code []vm.Instruction, funcID int64) ([]int64, int) {
	fn := &p.Functions[funcID]
	if fn.IsNative || fn.InstructionOffset < 0 {
		return nil, 0
	}
	end := functionEnd(p, code, funcID)

	var callees []int64
	seen := make(map[int64]bool)
	dynamic := 0
	for pc := fn.InstructionOffset; pc < end; pc++ {
		inst := &code[pc]
		if inst.Tag != vm.InstCall {
			continue
		}
		if inst.CalleeFuncID < 0 {
			dynamic++
			continue
		}
		if !seen[inst.CalleeFuncID] {
			seen[inst.CalleeFuncID] = true
			callees = append(callees, inst.CalleeFuncID)
		}
	}
	return callees, dynamic
}

// BaseChain renders a class's ancestor chain, nearest base first.
func BaseChain(p *object.Program, className string) (*ToolResult, error) {
	classID, ok := FindClass(p, className)
	if !ok {
		return NewResult(fmt.Sprintf("Class %q not found.", className)), nil
	}

	var out strings.Builder
	fmt.Fprintf(&out, "%s", chainEntry(p, classID))
	for _, base := range p.BaseClasses(classID) {
		fmt.Fprintf(&out, " -> %s", chainEntry(p, base))
	}
	out.WriteString("\n")
	return NewResult(out.String()), nil
}

func chainEntry(p *object.Program, classID int64) string {
	cls := p.Classes[classID]
	return fmt.Sprintf("%s (%d methods, %d vars)", className(p, classID), len(cls.MethodIDs), len(cls.VarNameIDs))
}
