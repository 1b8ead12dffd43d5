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

import "fmt"

const (
	// HashSize is the bucket count of a class's member hashmap (spec.md
	// §3.3: "a small prime, the implementation uses 64 in spirit").
	HashSize = 64
	// MaxMethods is the ceiling chosen so the method and variable slot
	// spaces never overlap in the encoded bucket entries.
	MaxMethods = 1 << 30
)

type memberBucketEntry struct {
	nameID int64
	slot   int64 // < MaxMethods: method index; >= MaxMethods: MaxMethods + variable index
}

// Class is one entry in Program.Classes.
type Class struct {
	BaseClassID    int64 // -1 if none
	MethodIDs      []int64
	MethodNameIDs  []int64
	VarNameIDs     []int64
	HasVarInitFunc bool

	buckets [HashSize][]memberBucketEntry
}

func newClass(baseClassID int64) *Class {
	return &Class{BaseClassID: baseClassID}
}

// AddClass registers a new class and returns its id.
func (p *Program) AddClass(name string, fileURI, modulePath, library string) (int64, error) {
	module, moduleIdx := p.Symbols.ModuleFor(modulePath, library)
	if _, exists := module.ClassNameToEntry[name]; exists {
		return -1, fmt.Errorf("object: duplicate class %q in module %q", name, modulePath)
	}

	cls := newClass(-1)
	sym := ClassSymbol{Name: name}
	if fileURI != "" {
		sym.FileURIIndex = p.Symbols.FileURIIndex(fileURI)
	}

	// Commit: append class, append symbol, update module index, update
	// reverse index. No step here can fail, so there is nothing to unwind;
	// the side-built cls/sym values above would simply be dropped on an
	// earlier error return.
	classID := int64(len(p.Classes))
	sym.GlobalID = classID
	p.Classes = append(p.Classes, cls)

	entryIdx := len(module.ClassSymbols)
	module.ClassSymbols = append(module.ClassSymbols, sym)
	module.ClassNameToEntry[name] = entryIdx
	p.Symbols.setClassReverse(classID, moduleIdx, entryIdx)

	return classID, nil
}

// RegisterClassVariable is a thin wrapper around RegisterClassMember for a
// plain class-member variable (no associated method).
func (p *Program) RegisterClassVariable(classID int64, name string) (int64, error) {
	return p.RegisterClassMember(classID, name, -1)
}

// RegisterClassMember registers a method (funcIdx >= 0) or variable
// (funcIdx == -1) under name on classID. It fails if the name is already
// registered on this class.
//
// spec.md §9 Open Question #3: the original encodes the bucket slot with
// `func_idx > 0 ? entry_idx : MAX_METHODS + entry_idx`, which misclassifies
// method index 0 as a variable. This implementation uses the evidently
// intended `funcIdx >= 0` test.
func (p *Program) RegisterClassMember(classID int64, name string, funcIdx int64) (int64, error) {
	if classID < 0 || int(classID) >= len(p.Classes) {
		return -1, fmt.Errorf("object: invalid class id %d", classID)
	}
	nameID := p.Symbols.InternMemberName(name)
	cls := p.Classes[classID]

	bucketIdx := nameID % HashSize
	for _, e := range cls.buckets[bucketIdx] {
		if e.nameID == nameID {
			return -1, fmt.Errorf("object: duplicate member %q on class %d", name, classID)
		}
	}

	var entryIdx int64
	if funcIdx >= 0 {
		if len(cls.MethodIDs) >= MaxMethods {
			return -1, fmt.Errorf("object: class %d exceeds max method count", classID)
		}
		cls.MethodIDs = append(cls.MethodIDs, funcIdx)
		cls.MethodNameIDs = append(cls.MethodNameIDs, nameID)
		entryIdx = int64(len(cls.MethodIDs) - 1)
	} else {
		cls.VarNameIDs = append(cls.VarNameIDs, nameID)
		entryIdx = int64(len(cls.VarNameIDs) - 1)
	}

	slot := entryIdx
	if funcIdx < 0 {
		slot = MaxMethods + entryIdx
	}
	cls.buckets[bucketIdx] = append(cls.buckets[bucketIdx], memberBucketEntry{nameID: nameID, slot: slot})

	return entryIdx, nil
}

// LookupClassMember decodes the bucket holding nameID on classID, returning
// (varID, funcID) with exactly one non-negative, or (-1, -1) if absent.
func (p *Program) LookupClassMember(classID int64, nameID int64) (varID, funcID int64) {
	if classID < 0 || int(classID) >= len(p.Classes) {
		return -1, -1
	}
	cls := p.Classes[classID]
	bucketIdx := nameID % HashSize
	for _, e := range cls.buckets[bucketIdx] {
		if e.nameID != nameID {
			continue
		}
		if e.slot < MaxMethods {
			return -1, cls.MethodIDs[e.slot]
		}
		return e.slot - MaxMethods, -1
	}
	return -1, -1
}

// LookupClassMemberByName interns (without creating) name and looks it up.
func (p *Program) LookupClassMemberByName(classID int64, name string) (varID, funcID int64) {
	nameID := p.Symbols.LookupMemberName(name, false)
	if nameID < 0 {
		return -1, -1
	}
	return p.LookupClassMember(classID, nameID)
}
