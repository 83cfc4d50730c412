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

package merkle

import (
	"fmt"
	"testing"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
)

func leavesOf(n int) []types.Hash {
	out := make([]types.Hash, n)
	for i := range out {
		out[i] = crypto.Keccak256Hash([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	return out
}

func TestEmptyTreeCommitsToZero(t *testing.T) {
	if ComputeRoot(nil) != types.ZeroHash {
		t.Errorf("empty tree root = %s, want zero hash", ComputeRoot(nil))
	}
}

func TestSingleLeafRootIsLeaf(t *testing.T) {
	leaves := leavesOf(1)
	if ComputeRoot(leaves) != leaves[0] {
		t.Errorf("single-leaf root = %s, want the leaf %s", ComputeRoot(leaves), leaves[0])
	}
}

func TestSortedPairingIsCommutative(t *testing.T) {
	a := crypto.Keccak256Hash([]byte("a"))
	b := crypto.Keccak256Hash([]byte("b"))
	if ComputeRoot([]types.Hash{a, b}) != ComputeRoot([]types.Hash{b, a}) {
		t.Error("sorted pairing should make the root order-independent")
	}
}

func TestProofsVerifyForEveryLeaf(t *testing.T) {
	for _, n := range []int{2, 3, 5, 8, 33} {
		leaves := leavesOf(n)
		root := ComputeRoot(leaves)
		for i := range leaves {
			proof := Prove(leaves, i)
			if !Verify(leaves[i], proof, root) {
				t.Errorf("n=%d leaf=%d: proof should verify", n, i)
			}
		}
		// A leaf outside the set must not verify.
		outsider := crypto.Keccak256Hash([]byte("outsider"))
		if Verify(outsider, Prove(leaves, 0), root) {
			t.Errorf("n=%d: outsider leaf must not verify", n)
		}
	}
}

func TestOddLevelDuplicatesLastLeaf(t *testing.T) {
	leaves := leavesOf(3)
	withDup := append(append([]types.Hash{}, leaves...), leaves[2])
	if ComputeRoot(withDup) != ComputeRoot(leaves) {
		t.Error("odd level should hash as if the last leaf were duplicated")
	}
}

func TestProveOutOfRange(t *testing.T) {
	leaves := leavesOf(4)
	if Prove(leaves, -1) != nil {
		t.Error("negative index should yield a nil proof")
	}
	if Prove(leaves, 4) != nil {
		t.Error("out-of-range index should yield a nil proof")
	}
}

func TestSampleCommitmentFoldIsOrderSensitive(t *testing.T) {
	l1 := crypto.Keccak256Hash([]byte("l1"))
	l2 := crypto.Keccak256Hash([]byte("l2"))

	var c types.Hash
	c12 := FoldSampleCommitment(FoldSampleCommitment(c, 0, l1), 1, l2)
	c21 := FoldSampleCommitment(FoldSampleCommitment(c, 1, l2), 0, l1)
	if c12 == c21 {
		t.Error("fold must be order-sensitive")
	}

	// The fold is the chained keccak over (prev || index || leaf).
	step1 := crypto.Keccak256Hash(types.ZeroHash.Bytes(), crypto.Uint32BE(0), l1.Bytes())
	step2 := crypto.Keccak256Hash(step1.Bytes(), crypto.Uint32BE(1), l2.Bytes())
	if c12 != step2 {
		t.Errorf("fold = %s, want %s", c12, step2)
	}
}

func TestSummaryHashBindsAllFields(t *testing.T) {
	root := crypto.Keccak256Hash([]byte("root"))
	fold := crypto.Keccak256Hash([]byte("fold"))
	base := SummaryHash(7, root, fold, 2)

	if base == SummaryHash(8, root, fold, 2) {
		t.Error("summary hash must bind the epoch id")
	}
	if base == SummaryHash(7, fold, root, 2) {
		t.Error("summary hash must distinguish root from fold")
	}
	if base == SummaryHash(7, root, fold, 3) {
		t.Error("summary hash must bind the sample count")
	}
}
