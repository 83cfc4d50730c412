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

// Package merkle implements the two commitment modes used by the PoSe
// settlement pipeline:
//
//   - the batch tree: a binary Merkle tree over receipt leaves whose
//     internal nodes hash the sorted pair keccak(min(L,R) || max(L,R)),
//     making membership proofs commutative;
//   - the index commitment: an order-sensitive running fold
//     c[i+1] = keccak(c[i] || leafIndex:u32 || leaf) over sampled leaves.
//
// An odd level duplicates its last node.
package merkle

import (
	"bytes"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
)

// hashPair hashes the sorted concatenation of a and b.
func hashPair(a, b types.Hash) types.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// ComputeRoot builds the sorted-pair tree over leaves and returns its root.
// An empty leaf set commits to the zero hash.
func ComputeRoot(leaves []types.Hash) types.Hash {
	if len(leaves) == 0 {
		return types.ZeroHash
	}
	level := make([]types.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

// Prove returns the sibling path for the leaf at index. The path carries no
// direction bits: verification re-sorts each pair.
func Prove(leaves []types.Hash, index int) []types.Hash {
	if index < 0 || index >= len(leaves) {
		return nil
	}
	var proof []types.Hash
	level := make([]types.Hash, len(leaves))
	copy(level, leaves)
	pos := index
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		sibling := pos ^ 1
		proof = append(proof, level[sibling])
		next := make([]types.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
		pos /= 2
	}
	return proof
}

// Verify folds leaf with each sibling using sorted pairing and compares the
// result against root.
func Verify(leaf types.Hash, proof []types.Hash, root types.Hash) bool {
	acc := leaf
	for _, sib := range proof {
		acc = hashPair(acc, sib)
	}
	return acc == root
}

// FoldSampleCommitment advances the index commitment by one sampled leaf:
// keccak(prev || leafIndex:u32 || leaf).
func FoldSampleCommitment(prev types.Hash, leafIndex uint32, leaf types.Hash) types.Hash {
	return crypto.Keccak256Hash(prev[:], crypto.Uint32BE(leafIndex), leaf[:])
}

// SummaryHash binds a batch's epoch, root, sample commitment and sample
// count: keccak(epochId:u64 || root || sampleCommitment || count:u32).
func SummaryHash(epochID uint64, root, sampleCommitment types.Hash, sampleCount uint32) types.Hash {
	return crypto.Keccak256Hash(crypto.Uint64BE(epochID), root[:], sampleCommitment[:], crypto.Uint32BE(sampleCount))
}
