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
)

// ProgramCounts summarizes a compiled program's tables.
type ProgramCounts struct {
	Functions       int   `json:"functions"`
	NativeFunctions int   `json:"native_functions"`
	Classes         int   `json:"classes"`
	Globals         int   `json:"globals"`
	Modules         int   `json:"modules"`
	Files           int   `json:"files"`
	MainFuncID      int64 `json:"main_func_id"`
}

// Counts gathers ProgramCounts from the program tables.
func Counts(p *object.Program) ProgramCounts {
	c := ProgramCounts{
		Functions:  len(p.Functions),
		Classes:    len(p.Classes),
		Globals:    len(p.Globals),
		Modules:    len(p.Symbols.Modules),
		Files:      len(p.Symbols.FileURIs),
		MainFuncID: p.MainFuncID,
	}
	for i := range p.Functions {
		if p.Functions[i].IsNative {
			c.NativeFunctions++
		}
	}
	return c
}

// Status renders a compiled program's status: overall counts plus a
// per-module symbol breakdown.
func Status(p *object.Program) (*ToolResult, error) {
	c := Counts(p)

	var out strings.Builder
	out.WriteString("Program status\n\n")
	fmt.Fprintf(&out, "  functions: %d (%d native)\n", c.Functions, c.NativeFunctions)
	fmt.Fprintf(&out, "  classes:   %d\n", c.Classes)
	fmt.Fprintf(&out, "  globals:   %d\n", c.Globals)
	fmt.Fprintf(&out, "  files:     %d\n", c.Files)
	if c.MainFuncID >= 0 {
		fmt.Fprintf(&out, "  main:      %s\n", funcName(p, c.MainFuncID))
	} else {
		out.WriteString("  main:      (none)\n")
	}

	out.WriteString("\nModules:\n")
	for _, m := range p.Symbols.Modules {
		name := m.ModulePath
		if name == object.BuiltinModulePath {
			name = "(builtin)"
		}
		fmt.Fprintf(&out, "  %-24s %d funcs, %d classes, %d globals\n",
			name, len(m.FuncSymbols), len(m.ClassSymbols), len(m.GlobalVarSymbols))
	}
	return NewResult(out.String()), nil
}
