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

// Tunables governing Stack's resize policy (spec.md §4.C.3).
const (
	// StackOvershoot is the slack retained on every grow/shrink.
	StackOvershoot = 256
	// StackMaxOvershoot is the slack ceiling before Shrink reclaims space.
	StackMaxOvershoot = 1024
	// StackEmergencyMargin is reserve blocked from ordinary resizes, so the
	// interpreter can always commit a small growth (e.g. a CALL's input
	// slots) even when the allocator is under pressure.
	StackEmergencyMargin = 16
)

// Stack is one VM thread's value stack: a contiguous, reusable buffer with a
// current function floor marking the base of the active call frame. The heap
// is consulted when slots holding GC references are freed or overwritten.
type Stack struct {
	entries []object.Value
	floor   int64
	heap    *Heap
}

// NewStack creates an empty stack. heap may be nil for stacks that never
// hold GC references (tests of the resize policy alone).
func NewStack(heap *Heap) *Stack {
	return &Stack{heap: heap}
}

// Len returns the number of live entries.
func (s *Stack) Len() int64 { return int64(len(s.entries)) }

// Cap returns the allocated capacity, for resize-policy tests and metrics.
func (s *Stack) Cap() int { return cap(s.entries) }

// Floor returns the current function floor.
func (s *Stack) Floor() int64 { return s.floor }

// SetFloor sets the current function floor, used on CALL/RETURNVALUE frame
// transitions.
func (s *Stack) SetFloor(floor int64) { s.floor = floor }

// Get returns the value at an absolute stack index.
func (s *Stack) Get(idx int64) object.Value { return s.entries[idx] }

// Set overwrites the value at an absolute stack index, releasing any GC
// reference the departing value held. The caller is responsible for having
// bumped v's external refcount if v is a GC reference.
func (s *Stack) Set(idx int64, v object.Value) {
	s.freeEntry(idx)
	s.entries[idx] = v
}

// ToSize grows or shrinks the stack to exactly totalEntries, per
// stack_to_size: growing zero-fills new slots, shrinking frees departing
// ones. Unless allowEmergencyMargin is set, growth provisions capacity for
// StackEmergencyMargin entries beyond totalEntries; with it set, only
// totalEntries itself is provisioned. ok is false only for a negative
// totalEntries; growth is never refused.
func (s *Stack) ToSize(totalEntries int64, allowEmergencyMargin bool) bool {
	if totalEntries < 0 {
		return false
	}
	if totalEntries < int64(len(s.entries)) {
		s.Shrink(totalEntries)
		return true
	}

	needed := totalEntries
	if !allowEmergencyMargin {
		needed += StackEmergencyMargin
	}
	if cap(s.entries) < int(needed) {
		grown := make([]object.Value, len(s.entries), needed+StackOvershoot)
		copy(grown, s.entries)
		s.entries = grown
	}

	for int64(len(s.entries)) < totalEntries {
		s.entries = append(s.entries, object.None())
	}
	return true
}

// Shrink truncates the stack to totalEntries, dropping any external
// refcount owned by departing GC references. Shrinking never fails.
func (s *Stack) Shrink(totalEntries int64) {
	for i := int64(len(s.entries)) - 1; i >= totalEntries; i-- {
		s.freeEntry(i)
	}
	s.entries = s.entries[:totalEntries]

	if int64(cap(s.entries))-totalEntries > StackMaxOvershoot {
		shrunk := make([]object.Value, len(s.entries), totalEntries+StackOvershoot)
		copy(shrunk, s.entries)
		s.entries = shrunk
	}
}

func (s *Stack) freeEntry(idx int64) {
	if e := s.entries[idx]; e.Type == object.ValGCVal && s.heap != nil {
		s.heap.DecRefExternal(e.GCHandle)
	}
	s.entries[idx] = object.None()
}
