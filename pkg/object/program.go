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

// Well-known method names looked up by id at class-construction/destruction
// and operator-overload sites. Interned eagerly so their ids are stable from
// the moment a Program is created, regardless of what user code defines.
const (
	MethodInit      = "init"
	MethodDestroy   = "destroy"
	MethodToString  = "to_str"
	MethodLength    = "length"
	MethodClone     = "clone"
	MethodCompareEq = "equals"
	MethodHash      = "hash"
)

var wellKnownMethodNames = []string{
	MethodInit, MethodDestroy, MethodToString, MethodLength, MethodClone, MethodCompareEq, MethodHash,
}

// Program is the root of the program object model (spec.md §3.1): the
// append-only tables of every function, class and global in a compiled
// program, plus the debug symbols describing them.
type Program struct {
	Functions []Function
	Classes   []*Class
	Globals   []Global
	Symbols   *Symbols

	funcByKey map[string]int64

	// MainFuncID is the entry point function id, or -1 until the resolver
	// locates a top-level "main" function in the entry module.
	MainFuncID int64
	// GlobalInitFuncID is the synthetic function id running every module's
	// top-level global initializers in import order, or -1 before it is
	// synthesized.
	GlobalInitFuncID int64

	// WellKnownMethodNameID maps a constant above to its interned member
	// name id, available immediately after NewProgram.
	WellKnownMethodNameID map[string]int64
}

// NewProgram creates an empty program with the builtin module and
// well-known method names already registered.
func NewProgram() *Program {
	p := &Program{
		Symbols:               NewSymbols(),
		funcByKey:             make(map[string]int64),
		MainFuncID:            -1,
		GlobalInitFuncID:      -1,
		WellKnownMethodNameID: make(map[string]int64),
	}
	for _, name := range wellKnownMethodNames {
		p.WellKnownMethodNameID[name] = p.Symbols.InternMemberName(name)
	}
	return p
}

// BaseClasses returns classID's ancestor chain, nearest first, classID not
// included. It stops at the first id with BaseClassID == -1 and tolerates
// (returns early on) a cycle rather than looping forever, since cyclic base
// chains can only arise from a resolver bug, not legal source.
func (p *Program) BaseClasses(classID int64) []int64 {
	var chain []int64
	seen := map[int64]bool{classID: true}
	cur := classID
	for {
		if cur < 0 || int(cur) >= len(p.Classes) {
			break
		}
		base := p.Classes[cur].BaseClassID
		if base < 0 || seen[base] {
			break
		}
		chain = append(chain, base)
		seen[base] = true
		cur = base
	}
	return chain
}

// ResolveMethod walks classID's base chain looking for a method or variable
// named name, returning the owning class id alongside LookupClassMember's
// result. ok is false if no class in the chain defines it.
func (p *Program) ResolveMethod(classID int64, name string) (ownerClassID, varID, funcID int64, ok bool) {
	nameID := p.Symbols.LookupMemberName(name, false)
	if nameID < 0 {
		return -1, -1, -1, false
	}
	for _, cid := range append([]int64{classID}, p.BaseClasses(classID)...) {
		v, f := p.LookupClassMember(cid, nameID)
		if v >= 0 || f >= 0 {
			return cid, v, f, true
		}
	}
	return -1, -1, -1, false
}
