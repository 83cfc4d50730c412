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

// Package canonjson produces the canonical stable serialization hashed
// under PoSe signatures: object keys sorted lexicographically, array order
// preserved, no key omitted, and numbers that would overflow 53 bits
// already carried as decimal strings by the payload types.
//
// Both signer and verifier must serialize through this package; any
// divergence in the byte form breaks signature verification.
package canonjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// Marshal renders v canonically. v may be any json.Marshal-able value; it
// is normalized through an interface{} tree first.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Canonicalize(raw)
}

// Canonicalize re-renders a JSON document canonically.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, errors.Wrap(err, "canonjson: invalid document")
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")

	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}

	case string:
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(enc)

	case json.Number:
		return writeNumber(buf, val)

	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := writeValue(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	default:
		return errors.Errorf("canonjson: unsupported value %T", v)
	}
	return nil
}

// writeNumber keeps integers exact. Integers beyond 53 bits must already
// travel as strings; a raw integer literal that large is rejected rather
// than silently rounded.
func writeNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if i, err := n.Int64(); err == nil {
		if i > (1<<53) || i < -(1<<53) {
			return errors.Errorf("canonjson: integer %s exceeds 53 bits; encode it as a string", s)
		}
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return errors.Errorf("canonjson: unparseable number %s", s)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return errors.Errorf("canonjson: non-finite number %s", s)
	}
	fmt.Fprintf(buf, "%s", s)
	return nil
}
