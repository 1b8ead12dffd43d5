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

import (
	"fmt"

	"github.com/kestrel-lang/kestrel/pkg/object"
)

// GCValueType tags the payload a heap-allocated value carries.
type GCValueType int

const (
	GCString GCValueType = iota
	GCList
	GCSet
	GCVector
	GCMap
	GCInstance
	GCIterator
)

// GCValue is one heap-allocated object, addressed by a stable handle rather
// than a pointer so that package object's Value (which must not import
// package vm) can carry a plain int64.
//
// heapRefcount tracks references from other heap values (container members,
// instance fields); externalRefcount tracks references held by stack slots
// and globals. A value is freed back to the freelist only when both reach
// zero.
type GCValue struct {
	Type GCValueType

	Str string

	// List, set and vector elements. Sets enforce membership on insert;
	// vectors are fixed-length after newvector.
	Elems []object.Value

	MapKeys   []object.Value
	MapValues []object.Value

	InstanceClassID int64
	InstanceFields  []object.Value

	// Iterator state: the container being stepped and the next position.
	IterContainer int64
	IterPos       int64

	heapRefcount     int64
	externalRefcount int64
}

// Heap is a per-VM-thread freelist pool allocator for GCValue records
// (spec.md §3.7, §4.C.3). Allocation is O(1): pop a free handle and reuse
// its slot, or grow the slab by one. Handles are stable for the value's
// lifetime and are reused only after the value is freed.
//
// A hand-rolled freelist is used here rather than sync.Pool because the
// interpreter needs deterministic recycling and exact external/heap
// refcounts; sync.Pool gives neither (it is GC-cooperating and may drop
// pooled items silently).
type Heap struct {
	slots []*GCValue
	free  []int64
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{}
}

// Alloc returns a fresh handle for a zeroed GCValue of the given type, with
// externalRefcount = 1 (the caller's own reference) and heapRefcount = 0,
// matching setconst's allocation contract.
func (h *Heap) Alloc(t GCValueType) int64 {
	v := &GCValue{Type: t, externalRefcount: 1}
	if n := len(h.free); n > 0 {
		handle := h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[handle] = v
		return handle
	}
	h.slots = append(h.slots, v)
	return int64(len(h.slots) - 1)
}

// AllocString allocates a heap string holding s.
func (h *Heap) AllocString(s string) int64 {
	handle := h.Alloc(GCString)
	h.slots[handle].Str = s
	return handle
}

// Get dereferences a handle.
func (h *Heap) Get(handle int64) (*GCValue, error) {
	if handle < 0 || int(handle) >= len(h.slots) || h.slots[handle] == nil {
		return nil, fmt.Errorf("vm: invalid heap handle %d", handle)
	}
	return h.slots[handle], nil
}

// ExternalRefcount reports a live value's external reference count.
func (h *Heap) ExternalRefcount(handle int64) int64 {
	if v, err := h.Get(handle); err == nil {
		return v.externalRefcount
	}
	return 0
}

// IncRefExternal bumps a heap value's external reference count (a new stack
// slot or global now points at it).
func (h *Heap) IncRefExternal(handle int64) {
	if v, err := h.Get(handle); err == nil {
		v.externalRefcount++
	}
}

// DecRefExternal drops a heap value's external reference count, freeing it
// back to the freelist once both reference counts reach zero.
func (h *Heap) DecRefExternal(handle int64) {
	v, err := h.Get(handle)
	if err != nil {
		return
	}
	v.externalRefcount--
	h.maybeFree(handle, v)
}

// IncRefHeap/DecRefHeap mirror the external variants for references held by
// container members or instance fields.
func (h *Heap) IncRefHeap(handle int64) {
	if v, err := h.Get(handle); err == nil {
		v.heapRefcount++
	}
}

func (h *Heap) DecRefHeap(handle int64) {
	v, err := h.Get(handle)
	if err != nil {
		return
	}
	v.heapRefcount--
	h.maybeFree(handle, v)
}

func (h *Heap) maybeFree(handle int64, v *GCValue) {
	if v.externalRefcount > 0 || v.heapRefcount > 0 {
		return
	}
	h.slots[handle] = nil
	h.free = append(h.free, handle)
	h.releaseChildren(v)
}

// releaseChildren drops the heap refcount this value held on every GC
// reference it contained. Done after the slot is detached so a cycle back to
// handle cannot recurse into a half-freed value.
func (h *Heap) releaseChildren(v *GCValue) {
	for _, e := range v.Elems {
		if e.Type == object.ValGCVal {
			h.DecRefHeap(e.GCHandle)
		}
	}
	for _, e := range v.MapKeys {
		if e.Type == object.ValGCVal {
			h.DecRefHeap(e.GCHandle)
		}
	}
	for _, e := range v.MapValues {
		if e.Type == object.ValGCVal {
			h.DecRefHeap(e.GCHandle)
		}
	}
	for _, e := range v.InstanceFields {
		if e.Type == object.ValGCVal {
			h.DecRefHeap(e.GCHandle)
		}
	}
	if v.Type == GCIterator {
		h.DecRefHeap(v.IterContainer)
	}
}

// ValueEquals compares two values the way the set/map containers do: scalars
// by value with int/float promotion, strings by content through the heap,
// everything else by handle identity.
func (h *Heap) ValueEquals(a, b object.Value) bool {
	if a.Type == object.ValGCVal && b.Type == object.ValGCVal {
		if a.GCHandle == b.GCHandle {
			return true
		}
		av, aerr := h.Get(a.GCHandle)
		bv, berr := h.Get(b.GCHandle)
		if aerr != nil || berr != nil {
			return false
		}
		return av.Type == GCString && bv.Type == GCString && av.Str == bv.Str
	}
	if a.Type != b.Type {
		if a.Type == object.ValInt64 && b.Type == object.ValFloat64 {
			return float64(a.IntValue) == b.FloatValue
		}
		if a.Type == object.ValFloat64 && b.Type == object.ValInt64 {
			return a.FloatValue == float64(b.IntValue)
		}
		return false
	}
	switch a.Type {
	case object.ValNone:
		return true
	case object.ValBool, object.ValInt64, object.ValFuncRef, object.ValClassRef:
		return a.IntValue == b.IntValue
	case object.ValFloat64:
		return a.FloatValue == b.FloatValue
	}
	return false
}

// Len reports the number of live (non-freed) slots, for metrics/tests.
func (h *Heap) Len() int64 {
	return int64(len(h.slots) - len(h.free))
}
