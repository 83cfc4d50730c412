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

// Package crypto implements the hashing and ECDSA primitives used across
// the node: Keccak-256 over packed byte concatenations, secp256k1
// sign/recover, and the canonical message builders that fix the exact
// byte sequences signed by each protocol participant.
package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/chainofclaw/COC-sub002/common/types"
)

// Keccak256 calculates and returns the Keccak256 hash of the input data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates the Keccak256 hash of the input data and
// converts it to an internal Hash type.
func Keccak256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(data...))
}

// Uint64BE encodes v as 8 bytes big-endian. All integer fields entering a
// hash preimage use explicit big-endian widths.
func Uint64BE(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// Uint32BE encodes v as 4 bytes big-endian.
func Uint32BE(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// Uint16BE encodes v as 2 bytes big-endian.
func Uint16BE(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b[:]
}
