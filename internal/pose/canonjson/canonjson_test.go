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

package canonjson

import (
	"bytes"
	"testing"
)

func canonicalize(t *testing.T, in string) string {
	t.Helper()
	out, err := Canonicalize([]byte(in))
	if err != nil {
		t.Fatalf("Canonicalize(%q) failed: %v", in, err)
	}
	return string(out)
}

func TestObjectKeysSortLexicographically(t *testing.T) {
	got := canonicalize(t, `{"zeta":1,"alpha":2,"mid":{"b":1,"a":2}}`)
	want := `{"alpha":2,"mid":{"a":2,"b":1},"zeta":1}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestArrayOrderIsPreserved(t *testing.T) {
	got := canonicalize(t, `{"list":[3,1,2,{"b":1,"a":2}]}`)
	want := `{"list":[3,1,2,{"a":2,"b":1}]}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestScalarsAndNulls(t *testing.T) {
	got := canonicalize(t, `{"s":"str","t":true,"f":false,"n":null,"i":42}`)
	want := `{"f":false,"i":42,"n":null,"s":"str","t":true}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestBigIntegersMustBeStrings(t *testing.T) {
	// 2^53 + 1 as a raw integer literal is rejected.
	if _, err := Canonicalize([]byte(`{"v":9007199254740993}`)); err == nil {
		t.Error("raw integer above 53 bits should be rejected")
	}

	// The same value as a decimal string passes through untouched.
	got := canonicalize(t, `{"v":"9007199254740993"}`)
	if got != `{"v":"9007199254740993"}` {
		t.Errorf("decimal string form mangled: %s", got)
	}
}

func TestCanonicalFormIsAFixedPoint(t *testing.T) {
	input := []byte(`{"b":[1,2],"a":{"y":"x","c":null}}`)
	once, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	twice, err := Canonicalize(once)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if !bytes.Equal(once, twice) {
		t.Errorf("canonical form is not a fixed point: %s != %s", once, twice)
	}
}

func TestMarshalGoValue(t *testing.T) {
	type payload struct {
		Zebra string `json:"zebra"`
		Alpha uint64 `json:"alpha"`
	}
	out, err := Marshal(&payload{Zebra: "z", Alpha: 7})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != `{"alpha":7,"zebra":"z"}` {
		t.Errorf("got %s", out)
	}
}

func TestDivergentKeyOrderHashesEqual(t *testing.T) {
	a := canonicalize(t, `{"x":1,"y":"2"}`)
	b := canonicalize(t, `{"y":"2","x":1}`)
	if a != b {
		t.Errorf("key order should not matter: %s != %s", a, b)
	}
}

func TestInvalidDocumentRejected(t *testing.T) {
	if _, err := Canonicalize([]byte(`{`)); err == nil {
		t.Error("truncated document should be rejected")
	}
}
