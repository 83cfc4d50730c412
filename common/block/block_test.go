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

package block

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
)

func sampleBlock() *Block {
	b := &Block{
		Number:           1,
		ParentHash:       types.ZeroHash,
		Proposer:         "0x1111111111111111111111111111111111111111",
		TimestampMs:      1_700_000_000_000,
		Txs:              []string{"0xaaaa", "0xbbbb"},
		BaseFee:          uint256.NewInt(1_000_000_000),
		CumulativeWeight: 1,
	}
	b.Seal()
	return b
}

func TestHashIsDeterministic(t *testing.T) {
	a, b := sampleBlock(), sampleBlock()
	if a.Hash != b.Hash {
		t.Errorf("identical blocks hash differently: %s != %s", a.Hash, b.Hash)
	}
	if a.Hash != a.ComputeHash() {
		t.Errorf("Seal and ComputeHash disagree: %s != %s", a.Hash, a.ComputeHash())
	}
}

func TestHashExcludesGasUsedAndSignature(t *testing.T) {
	b := sampleBlock()
	before := b.Hash
	b.GasUsed = 42_000
	b.Signature = []byte{1, 2, 3}
	if b.ComputeHash() != before {
		t.Error("gasUsed and signature must not be bound into the hash")
	}
}

func TestHashBindsEveryProposalField(t *testing.T) {
	base := sampleBlock().Hash

	mutations := []struct {
		name string
		f    func(*Block)
	}{
		{"number", func(b *Block) { b.Number = 2 }},
		{"parentHash", func(b *Block) { b.ParentHash = crypto.Keccak256Hash([]byte("x")) }},
		{"proposer", func(b *Block) { b.Proposer = "0x2222222222222222222222222222222222222222" }},
		{"timestampMs", func(b *Block) { b.TimestampMs++ }},
		{"txs", func(b *Block) { b.Txs = []string{"0xaaaa"} }},
		{"baseFee", func(b *Block) { b.BaseFee = uint256.NewInt(2_000_000_000) }},
		{"cumulativeWeight", func(b *Block) { b.CumulativeWeight = 2 }},
	}
	for _, m := range mutations {
		b := sampleBlock()
		m.f(b)
		if b.ComputeHash() == base {
			t.Errorf("mutating %s did not change the hash", m.name)
		}
	}
}

func TestJSONRoundTripPreservesBaseFee(t *testing.T) {
	b := sampleBlock()
	b.GasUsed = 21000
	b.Signature = []byte{0xde, 0xad}

	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	// Base fee travels as a decimal string.
	if !strings.Contains(string(raw), `"baseFee":"1000000000"`) {
		t.Errorf("baseFee not encoded as decimal string: %s", raw)
	}

	var decoded Block
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Hash != b.Hash {
		t.Errorf("hash mismatch after round trip")
	}
	if !decoded.BaseFee.Eq(b.BaseFee) {
		t.Errorf("baseFee = %s, want %s", decoded.BaseFee, b.BaseFee)
	}
	if len(decoded.Txs) != len(b.Txs) || decoded.Txs[0] != b.Txs[0] || decoded.Txs[1] != b.Txs[1] {
		t.Errorf("txs = %v, want %v", decoded.Txs, b.Txs)
	}
	if decoded.GasUsed != b.GasUsed {
		t.Errorf("gasUsed = %d, want %d", decoded.GasUsed, b.GasUsed)
	}
	if !bytes.Equal(decoded.Signature, b.Signature) {
		t.Errorf("signature = %x, want %x", decoded.Signature, b.Signature)
	}
	if decoded.ComputeHash() != decoded.Hash {
		t.Error("decoded block fails hash recomputation")
	}
}

func TestBloomContainsLogAddressAndTopics(t *testing.T) {
	addr := types.HexToAddress("0x00000000000000000000000000000000000000aa")
	topic := crypto.Keccak256Hash([]byte("Transfer"))
	bloom := CreateBloom([]*Log{{Address: addr, Topics: []types.Hash{topic}}})
	if len(bloom) != 256 {
		t.Fatalf("bloom length = %d, want 256", len(bloom))
	}

	probe := func(item []byte) bool {
		h := crypto.Keccak256(item)
		for i := 0; i < 6; i += 2 {
			bit := (uint(h[i])<<8 | uint(h[i+1])) & 2047
			if bloom[256-1-bit/8]&(1<<(bit%8)) == 0 {
				return false
			}
		}
		return true
	}
	if !probe(addr.Bytes()) {
		t.Error("bloom should contain the log address")
	}
	if !probe(topic.Bytes()) {
		t.Error("bloom should contain the topic")
	}
	if probe([]byte("not in bloom")) {
		t.Error("bloom should not claim an absent item")
	}
}
