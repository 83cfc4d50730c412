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

package api

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// typedDataField is one member of an EIP-712 struct type.
type typedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// typedData is the caller-supplied EIP-712 payload.
type typedData struct {
	Types       map[string][]typedDataField `json:"types"`
	PrimaryType string                      `json:"primaryType"`
	Domain      map[string]interface{}      `json:"domain"`
	Message     map[string]interface{}      `json:"message"`
}

// TypedDataHash computes the canonical EIP-712 signing digest:
// keccak256("\x19\x01" || domainSeparator || hashStruct(primaryType, message)).
// The EIP712Domain type is stripped from the message-type dependency set.
func TypedDataHash(raw json.RawMessage) (types.Hash, error) {
	var td typedData
	if err := json.Unmarshal(raw, &td); err != nil {
		return types.Hash{}, errors.Wrap(err, "typed data payload")
	}
	if td.PrimaryType == "" {
		return types.Hash{}, errors.New("typed data missing primaryType")
	}
	if _, ok := td.Types[td.PrimaryType]; !ok {
		return types.Hash{}, errors.Errorf("primary type %q not defined", td.PrimaryType)
	}

	domainSeparator, err := td.hashStruct("EIP712Domain", td.Domain)
	if err != nil {
		return types.Hash{}, errors.Wrap(err, "domain")
	}
	messageHash, err := td.hashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return types.Hash{}, errors.Wrap(err, "message")
	}
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), messageHash.Bytes()), nil
}

// hashStruct is keccak256(typeHash || encodeData(fields)).
func (td *typedData) hashStruct(typeName string, data map[string]interface{}) (types.Hash, error) {
	typeHash := crypto.Keccak256([]byte(td.encodeType(typeName)))
	encoded := append([]byte{}, typeHash...)
	for _, field := range td.Types[typeName] {
		value, err := td.encodeValue(field.Type, data[field.Name])
		if err != nil {
			return types.Hash{}, errors.Wrapf(err, "field %s", field.Name)
		}
		encoded = append(encoded, value...)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// encodeType renders "Name(type member,...)" with referenced struct types
// appended alphabetically. EIP712Domain never appears as a dependency of
// a message type.
func (td *typedData) encodeType(typeName string) string {
	deps := td.dependencies(typeName, map[string]bool{})
	delete(deps, typeName)
	if typeName != "EIP712Domain" {
		delete(deps, "EIP712Domain")
	}
	sorted := make([]string, 0, len(deps))
	for dep := range deps {
		sorted = append(sorted, dep)
	}
	sort.Strings(sorted)

	var sb strings.Builder
	for _, name := range append([]string{typeName}, sorted...) {
		sb.WriteString(name)
		sb.WriteByte('(')
		for i, field := range td.Types[name] {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(field.Type)
			sb.WriteByte(' ')
			sb.WriteString(field.Name)
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

func (td *typedData) dependencies(typeName string, found map[string]bool) map[string]bool {
	base := strings.TrimSuffix(typeName, "[]")
	if found[base] {
		return found
	}
	if _, ok := td.Types[base]; !ok {
		return found
	}
	found[base] = true
	for _, field := range td.Types[base] {
		td.dependencies(field.Type, found)
	}
	return found
}

// encodeValue produces the 32-byte atomic encoding of one field.
func (td *typedData) encodeValue(fieldType string, value interface{}) ([]byte, error) {
	// Arrays: keccak of the concatenated element encodings.
	if strings.HasSuffix(fieldType, "[]") {
		items, ok := value.([]interface{})
		if !ok {
			return nil, errors.Errorf("expected array for %s", fieldType)
		}
		elemType := strings.TrimSuffix(fieldType, "[]")
		var buf []byte
		for _, item := range items {
			enc, err := td.encodeValue(elemType, item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, enc...)
		}
		return crypto.Keccak256(buf), nil
	}

	// Nested structs hash recursively.
	if _, ok := td.Types[fieldType]; ok {
		nested, ok := value.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("expected object for %s", fieldType)
		}
		h, err := td.hashStruct(fieldType, nested)
		if err != nil {
			return nil, err
		}
		return h.Bytes(), nil
	}

	switch {
	case fieldType == "string":
		s, ok := value.(string)
		if !ok {
			return nil, errors.New("expected string")
		}
		return crypto.Keccak256([]byte(s)), nil

	case fieldType == "bytes":
		s, ok := value.(string)
		if !ok {
			return nil, errors.New("expected hex bytes")
		}
		return crypto.Keccak256(types.FromHex(s)), nil

	case fieldType == "address":
		s, ok := value.(string)
		if !ok || !types.IsHexAddress(s) {
			return nil, errors.New("expected address")
		}
		padded := make([]byte, 32)
		copy(padded[12:], types.HexToAddress(s).Bytes())
		return padded, nil

	case fieldType == "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, errors.New("expected bool")
		}
		padded := make([]byte, 32)
		if b {
			padded[31] = 1
		}
		return padded, nil

	case strings.HasPrefix(fieldType, "bytes"):
		s, ok := value.(string)
		if !ok {
			return nil, errors.New("expected hex bytes")
		}
		raw := types.FromHex(s)
		padded := make([]byte, 32)
		copy(padded, raw) // fixed bytes are right-padded
		return padded, nil

	case strings.HasPrefix(fieldType, "uint"), strings.HasPrefix(fieldType, "int"):
		v, err := coerceInteger(value)
		if err != nil {
			return nil, err
		}
		return v.PaddedBytes(32), nil

	default:
		return nil, errors.Errorf("unsupported type %s", fieldType)
	}
}

func coerceInteger(value interface{}) (*uint256.Int, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return nil, errors.New("negative integers unsupported")
		}
		return uint256.NewInt(uint64(v)), nil
	case string:
		if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
			return uint256.FromHex(strings.ToLower(v))
		}
		return uint256.FromDecimal(v)
	default:
		return nil, errors.Errorf("cannot encode %T as integer", value)
	}
}
