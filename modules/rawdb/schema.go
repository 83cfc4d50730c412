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

// Package rawdb provides low-level database access for chain data.
//
// # Database Schema Documentation
//
// All tables share one ordered keyspace, separated by single-byte-prefix
// namespaces. Component ownership per prefix:
//
// ## 1. Chain tables (chain engine / block index)
//
//	B/<num:8>                      -> block_json
//	T/<tx_hash:32>                 -> {raw_tx, receipt, block_number}
//	A/<addr:20>/<num:8>/<idx:4>    -> tx_hash(32)
//	L/<num:8>/<tx:4>/<log:4>       -> log_json
//
// ## 2. PoSe tables
//
//	N/<replay_key:32>              -> timestamp_ms(8)
//
// ## 3. Snapshot & maintenance tables
//
//	X/head                         -> head block number(8)
//	X/<num:8>                      -> block_json (chain snapshot mirror)
//	P/stats                        -> pruner_stats_json
//
// # Key Encoding Conventions
//
// - Block numbers: 8 bytes, big-endian
// - Tx/log indices: 4 bytes, big-endian
// - Hashes: 32 bytes, raw
// - Addresses: 20 bytes, raw
//
// # Access Patterns
//
// 1. The chain engine is the only writer of B/, T/, A/, L/ and X/
// 2. The PoSe nonce registry owns N/
// 3. The pruner owns P/ and deletes from N/
// 4. Multi-key updates for one block go through a single atomic batch
package rawdb

import (
	"encoding/binary"

	"github.com/chainofclaw/COC-sub002/common/types"
)

// Table prefixes.
var (
	BlockPrefix    = []byte("B/")
	TxPrefix       = []byte("T/")
	AddressPrefix  = []byte("A/")
	LogPrefix      = []byte("L/")
	NoncePrefix    = []byte("N/")
	SnapshotPrefix = []byte("X/")
	PrunerPrefix   = []byte("P/")
)

// HeadKey stores the snapshot head number.
var HeadKey = []byte("X/head")

// PrunerStatsKey stores the pruner metadata blob.
var PrunerStatsKey = []byte("P/stats")

// EncodeBlockNumber encodes a block number as 8 bytes big-endian.
func EncodeBlockNumber(number uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], number)
	return b[:]
}

// DecodeBlockNumber decodes a block number from 8 bytes big-endian.
func DecodeBlockNumber(data []byte) uint64 {
	if len(data) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// BlockKey returns B/<num>.
func BlockKey(number uint64) []byte {
	return append(append([]byte{}, BlockPrefix...), EncodeBlockNumber(number)...)
}

// TxLookupKey returns T/<hash>.
func TxLookupKey(txHash types.Hash) []byte {
	return append(append([]byte{}, TxPrefix...), txHash.Bytes()...)
}

// AddressTxKey returns A/<addr>/<num>/<idx>.
func AddressTxKey(addr types.Address, number uint64, txIndex uint32) []byte {
	key := make([]byte, 0, len(AddressPrefix)+types.AddressLength+8+4)
	key = append(key, AddressPrefix...)
	key = append(key, addr.Bytes()...)
	key = append(key, EncodeBlockNumber(number)...)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], txIndex)
	return append(key, idx[:]...)
}

// AddressTxPrefix returns the iteration prefix A/<addr>/.
func AddressTxPrefix(addr types.Address) []byte {
	key := make([]byte, 0, len(AddressPrefix)+types.AddressLength)
	key = append(key, AddressPrefix...)
	return append(key, addr.Bytes()...)
}

// LogKey returns L/<num>/<tx>/<log>.
func LogKey(number uint64, txIndex, logIndex uint32) []byte {
	key := make([]byte, 0, len(LogPrefix)+8+4+4)
	key = append(key, LogPrefix...)
	key = append(key, EncodeBlockNumber(number)...)
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], txIndex)
	binary.BigEndian.PutUint32(buf[4:], logIndex)
	return append(key, buf[:]...)
}

// LogBlockPrefix returns the iteration prefix L/<num>/.
func LogBlockPrefix(number uint64) []byte {
	key := make([]byte, 0, len(LogPrefix)+8)
	key = append(key, LogPrefix...)
	return append(key, EncodeBlockNumber(number)...)
}

// NonceKey returns N/<replay_key>.
func NonceKey(replayKey types.Hash) []byte {
	return append(append([]byte{}, NoncePrefix...), replayKey.Bytes()...)
}

// SnapshotBlockKey returns X/<num>.
func SnapshotBlockKey(number uint64) []byte {
	return append(append([]byte{}, SnapshotPrefix...), EncodeBlockNumber(number)...)
}
