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

package unicode

import (
	"bytes"
	"testing"
)

func TestRoundTrip_ValidUTF8(t *testing.T) {
	cases := []string{
		"hello",
		"héllo wörld",
		"日本語",
		"emoji 🎉 party",
	}
	for _, s := range cases {
		cps := ToUTF32([]byte(s))
		got := FromUTF32(cps)
		if !bytes.Equal(got, []byte(s)) {
			t.Errorf("round trip of %q produced %q", s, got)
		}
	}
}

func TestDecodeRune_MalformedByteSurrogateEscapes(t *testing.T) {
	// 0xFF is never valid anywhere in UTF-8.
	input := []byte{'a', 0xFF, 'b'}
	cps := ToUTF32(input)
	if len(cps) != 3 {
		t.Fatalf("got %d codepoints, want 3", len(cps))
	}
	if cps[1] != SurrogateEscapeBase+0xFF {
		t.Errorf("got codepoint %x, want %x", cps[1], SurrogateEscapeBase+0xFF)
	}

	roundTripped := FromUTF32(cps)
	if !bytes.Equal(roundTripped, input) {
		t.Errorf("round trip of malformed input = %v, want %v", roundTripped, input)
	}
}

func TestDecodeRune_TruncatedMultiByteSequenceSurrogateEscapes(t *testing.T) {
	// 0xE2 0x82 0xAC is the 3-byte sequence for '€'; truncate it.
	input := []byte{0xE2, 0x82}
	cps := ToUTF32(input)
	if len(cps) != 2 {
		t.Fatalf("got %d codepoints, want 2 (one per raw byte)", len(cps))
	}
	if cps[0] != SurrogateEscapeBase+0xE2 {
		t.Errorf("got %x, want surrogate-escaped 0xE2", cps[0])
	}
}

func TestDecodeRune_OverlongEncodingRejected(t *testing.T) {
	// 0xC0 0x80 is an overlong encoding of NUL; must not decode as U+0000.
	input := []byte{0xC0, 0x80}
	cp, n := DecodeRune(input)
	if n != 1 {
		t.Fatalf("got consumed=%d, want 1", n)
	}
	if cp != SurrogateEscapeBase+0xC0 {
		t.Errorf("got %x, want surrogate-escaped 0xC0", cp)
	}
}
