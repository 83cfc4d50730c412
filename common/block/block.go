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

// Package block models blocks, receipts and logs.
//
// The block hash commits to the proposal content only:
//
//	hash = keccak256(number || parentHash || proposer || timestampMs ||
//	                 join(txs, ",") || baseFee || cumulativeWeight)
//
// gasUsed is set after execution and deliberately excluded from the
// preimage; validators verify it against the measured total instead.
// The signature, when present, covers the canonical block message and is
// likewise outside the preimage.
package block

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
)

// Block is a chain block. Fields are exported for persistence; after a
// block is applied only Finalized may flip.
type Block struct {
	Number           uint64       `json:"number"`
	Hash             types.Hash   `json:"hash"`
	ParentHash       types.Hash   `json:"parentHash"`
	Proposer         string       `json:"proposer"`
	TimestampMs      uint64       `json:"timestampMs"`
	Txs              []string     `json:"txs"`
	BaseFee          *uint256.Int `json:"-"`
	GasUsed          uint64       `json:"gasUsed"`
	CumulativeWeight uint64       `json:"cumulativeWeight"`
	Finalized        bool         `json:"finalized"`
	Signature        []byte       `json:"-"`
}

// ComputeHash recomputes the block hash from the bound fields.
func (b *Block) ComputeHash() types.Hash {
	baseFee := b.BaseFee
	if baseFee == nil {
		baseFee = uint256.NewInt(0)
	}
	return crypto.Keccak256Hash(
		crypto.Uint64BE(b.Number),
		b.ParentHash.Bytes(),
		[]byte(b.Proposer),
		crypto.Uint64BE(b.TimestampMs),
		[]byte(strings.Join(b.Txs, ",")),
		baseFee.PaddedBytes(32),
		crypto.Uint64BE(b.CumulativeWeight),
	)
}

// Seal fills in the hash from the current contents.
func (b *Block) Seal() {
	b.Hash = b.ComputeHash()
}

// SignMessage is the canonical proposer-signature preimage.
func (b *Block) SignMessage() []byte {
	return crypto.BlockMessage(b.Hash)
}

// Copy returns a deep copy.
func (b *Block) Copy() *Block {
	cpy := *b
	cpy.Txs = append([]string{}, b.Txs...)
	if b.BaseFee != nil {
		cpy.BaseFee = new(uint256.Int).Set(b.BaseFee)
	}
	if b.Signature != nil {
		cpy.Signature = append([]byte{}, b.Signature...)
	}
	return &cpy
}

// blockJSON is the persisted/wire form; big integers travel as decimal
// strings and byte blobs as hex.
type blockJSON struct {
	Number           uint64     `json:"number"`
	Hash             types.Hash `json:"hash"`
	ParentHash       types.Hash `json:"parentHash"`
	Proposer         string     `json:"proposer"`
	TimestampMs      uint64     `json:"timestampMs"`
	Txs              []string   `json:"txs"`
	BaseFee          string     `json:"baseFee"`
	GasUsed          uint64     `json:"gasUsed"`
	CumulativeWeight uint64     `json:"cumulativeWeight"`
	Finalized        bool       `json:"finalized"`
	Signature        string     `json:"signature,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (b *Block) MarshalJSON() ([]byte, error) {
	baseFee := b.BaseFee
	if baseFee == nil {
		baseFee = uint256.NewInt(0)
	}
	enc := blockJSON{
		Number:           b.Number,
		Hash:             b.Hash,
		ParentHash:       b.ParentHash,
		Proposer:         b.Proposer,
		TimestampMs:      b.TimestampMs,
		Txs:              b.Txs,
		BaseFee:          baseFee.Dec(),
		GasUsed:          b.GasUsed,
		CumulativeWeight: b.CumulativeWeight,
		Finalized:        b.Finalized,
	}
	if len(b.Signature) > 0 {
		enc.Signature = "0x" + hex.EncodeToString(b.Signature)
	}
	if enc.Txs == nil {
		enc.Txs = []string{}
	}
	return json.Marshal(&enc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Block) UnmarshalJSON(input []byte) error {
	var dec blockJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	baseFee, err := uint256.FromDecimal(dec.BaseFee)
	if err != nil {
		return err
	}
	b.Number = dec.Number
	b.Hash = dec.Hash
	b.ParentHash = dec.ParentHash
	b.Proposer = dec.Proposer
	b.TimestampMs = dec.TimestampMs
	b.Txs = dec.Txs
	b.BaseFee = baseFee
	b.GasUsed = dec.GasUsed
	b.CumulativeWeight = dec.CumulativeWeight
	b.Finalized = dec.Finalized
	if dec.Signature != "" {
		b.Signature = types.FromHex(dec.Signature)
	}
	return nil
}
