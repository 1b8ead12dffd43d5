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

// Package debug implements the tools used by `kestrel serve` and
// `kestrel status`: symbol search, disassembly, call tracing and program
// status, all over an in-memory compiled program. `kestrel query` does not
// use them.
package debug

// ToolResult is a tool invocation's rendered output.
type ToolResult struct {
	Content string
	IsError bool
}

// NewResult wraps successful tool output.
func NewResult(content string) *ToolResult {
	return &ToolResult{Content: content}
}

// NewError wraps a user-visible tool error.
func NewError(content string) *ToolResult {
	return &ToolResult{Content: content, IsError: true}
}
