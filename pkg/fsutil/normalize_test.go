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

package fsutil

import "testing"

func TestNormalize_CollapsesDoubleSlashesAndDotDot(t *testing.T) {
	cases := map[string]string{
		"a//b/./c":                "a/b/c",
		"a/b/../c":                "a/c",
		"./a/b":                   "a/b",
		"a/b/":                    "a/b/",
		"":                        ".",
		"project/src/../src/main": "project/src/main",
		"u//abc/def/..u/../..":    "u/abc",
		"../abc/def/..u/../..":    "../abc",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRemoveDoubleSlashes(t *testing.T) {
	if got := RemoveDoubleSlashes("a//b///c"); got != "a/b/c" {
		t.Errorf("got %q", got)
	}
	if got := RemoveDoubleSlashes("/a//b"); got != "/a/b" {
		t.Errorf("got %q", got)
	}
}

func TestHasDottedComponent(t *testing.T) {
	if !HasDottedComponent("a/b.c/d") {
		t.Errorf("expected dotted component to be detected")
	}
	if HasDottedComponent("a/b/c") {
		t.Errorf("expected no dotted component")
	}
	if HasDottedComponent("./a/../b") {
		t.Errorf(". and .. must not count as dotted components")
	}
}
