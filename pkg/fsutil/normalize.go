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

// Package fsutil implements the small set of path manipulations the loader
// and resolver need: slash normalization and double-slash collapsing.
package fsutil

import (
	"path"
	"strings"
)

// RemoveDoubleSlashes collapses runs of consecutive '/' into one, leaving a
// single leading slash (if any) intact.
func RemoveDoubleSlashes(p string) string {
	leadingSlash := strings.HasPrefix(p, "/")
	parts := strings.Split(p, "/")
	var kept []string
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	joined := strings.Join(kept, "/")
	if joined != "" && strings.HasSuffix(p, "/") {
		joined += "/"
	}
	if leadingSlash {
		return "/" + joined
	}
	return joined
}

// Normalize collapses "." and ".." components and duplicate slashes,
// matching the component-stack-collapse algorithm of the original
// implementation's path normalizer. For every path this repository's
// loader and resolver construct, this produces byte-identical results to
// path.Clean; Normalize is kept as a distinct entry point so the
// normalization policy is named and testable on its own, independent of
// path.Clean's broader (and here irrelevant) handling of absolute-path
// edge cases.
func Normalize(p string) string {
	if p == "" {
		return "."
	}
	collapsed := RemoveDoubleSlashes(p)
	trailingSlash := len(collapsed) > 1 && strings.HasSuffix(collapsed, "/")
	cleaned := path.Clean(collapsed)
	if trailingSlash && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// HasDottedComponent reports whether any '/'-separated component of p
// (other than "." or "..") contains a '.', which spec.md §4.B.1 treats as an
// error during module-path derivation.
func HasDottedComponent(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.Contains(part, ".") {
			return true
		}
	}
	return false
}
