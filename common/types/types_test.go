// Copyright 2022-2026 The COC Authors
// This file is part of the COC library.
//
// The COC library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The COC library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the COC library. If not, see <http://www.gnu.org/licenses/>.

package types

import (
	"encoding/json"
	"testing"
)

func TestHashHexRoundTrip(t *testing.T) {
	h := HexToHash("0x00000000000000000000000000000000000000000000000000000000000000ff")
	if h[31] != 0xff {
		t.Errorf("h[31] = %#x, want 0xff", h[31])
	}
	if h.Hex() != "0x00000000000000000000000000000000000000000000000000000000000000ff" {
		t.Errorf("unexpected hex form: %s", h.Hex())
	}

	raw, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded Hash
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded != h {
		t.Errorf("round trip mismatch: %s != %s", decoded, h)
	}
}

func TestAddressHexRoundTrip(t *testing.T) {
	a := HexToAddress("0x00000000000000000000000000000000000000ab")
	if a[19] != 0xab {
		t.Errorf("a[19] = %#x, want 0xab", a[19])
	}

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded Address
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded != a {
		t.Errorf("round trip mismatch: %s != %s", decoded, a)
	}
}

func TestUnmarshalRejectsWrongLength(t *testing.T) {
	var h Hash
	if err := h.UnmarshalText([]byte("0x1234")); err == nil {
		t.Error("short hash input should fail to unmarshal")
	}
	var a Address
	if err := a.UnmarshalText([]byte("0x1234")); err == nil {
		t.Error("short address input should fail to unmarshal")
	}
}

func TestHexValidators(t *testing.T) {
	tests := []struct {
		input   string
		isAddr  bool
		comment string
	}{
		{"0x00000000000000000000000000000000000000ab", true, "canonical address"},
		{"00000000000000000000000000000000000000ab", false, "no prefix"},
		{"0x00ab", false, "short"},
		{"0x000000000000000000000000000000000000zzzz", false, "bad hex digits"},
	}
	for _, tt := range tests {
		if got := IsHexAddress(tt.input); got != tt.isAddr {
			t.Errorf("IsHexAddress(%q) = %v, want %v (%s)", tt.input, got, tt.isAddr, tt.comment)
		}
	}

	if !IsHexHash("0x00000000000000000000000000000000000000000000000000000000000000ff") {
		t.Error("canonical hash should validate")
	}
	if IsHexHash("0xff") {
		t.Error("short hash should not validate")
	}
}

func TestSetBytesCropsFromLeft(t *testing.T) {
	var h Hash
	h.SetBytes(make([]byte, 40)) // oversized input keeps the right-most 32
	if h != ZeroHash {
		t.Errorf("oversized zero input should crop to zero hash, got %s", h)
	}

	var a Address
	a.SetBytes([]byte{0x01, 0x02})
	if a[19] != 0x02 || a[18] != 0x01 {
		t.Errorf("short input should right-align: a[18..19] = %#x %#x", a[18], a[19])
	}
}
