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

// StorageKind distinguishes the table a StorageRef points into.
type StorageKind int

const (
	// StorageUnset marks a reference that has not been resolved yet.
	StorageUnset StorageKind = iota
	// GlobalVarSlot indexes Program.Globals.
	GlobalVarSlot
	// GlobalFuncSlot indexes Program.Functions.
	GlobalFuncSlot
	// GlobalClassSlot indexes Program.Classes.
	GlobalClassSlot
	// LocalSlot indexes a stack slot relative to the current call frame's
	// floor. Assignment of local slots happens outside the resolver (see
	// spec.md §4.B.5 step 4); this package only carries the tag.
	LocalSlot
)

// StorageRef is the single unit of cross-reference attached to AST
// declaration and identifier-reference nodes. Once Set, loading a value for
// an identifier is a direct table lookup; no name resolution happens at VM
// time.
type StorageRef struct {
	Kind StorageKind
	ID   int64
	Set  bool
}

// Unset is the zero-value, not-yet-resolved storage reference.
var Unset = StorageRef{}

// NewStorageRef builds a resolved storage reference.
func NewStorageRef(kind StorageKind, id int64) StorageRef {
	return StorageRef{Kind: kind, ID: id, Set: true}
}
