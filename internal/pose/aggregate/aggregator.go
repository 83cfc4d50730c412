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

// Package aggregate batches accepted PoSe receipts into per-epoch Merkle
// commitments, submits them to the settlement contract, finalizes epochs
// once their dispute window elapses, dispatches score-derived slashes and
// watches submitted batches for provable sample omissions.
package aggregate

import (
	"encoding/binary"
	"sort"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/crypto/merkle"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/internal/pose"
	"github.com/chainofclaw/COC-sub002/internal/pose/canonjson"
	"github.com/chainofclaw/COC-sub002/internal/settlement"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// defaultSampleCount is how many receipts a batch samples for audit.
const defaultSampleCount = 8

// Aggregator builds and submits per-epoch receipt batches.
type Aggregator struct {
	id          types.Address
	engine      *pose.Engine
	contract    *settlement.Contract
	sampleCount int
	logger      log.Logger

	// built batches by epoch, kept for the dispute observer.
	built map[uint64]*BuiltBatch
}

// BuiltBatch is the local record of one submitted batch.
type BuiltBatch struct {
	EpochID     uint64
	BatchID     types.Hash
	MerkleRoot  types.Hash
	SummaryHash types.Hash
	Leaves      []types.Hash
	Samples     []settlement.SampleProof
}

// NewAggregator binds an aggregator identity to the engine and contract.
func NewAggregator(id types.Address, engine *pose.Engine, contract *settlement.Contract, sampleCount int) *Aggregator {
	if sampleCount <= 0 {
		sampleCount = defaultSampleCount
	}
	return &Aggregator{
		id:          id,
		engine:      engine,
		contract:    contract,
		sampleCount: sampleCount,
		logger:      log.New("module", "pose-aggregate"),
		built:       make(map[uint64]*BuiltBatch),
	}
}

// ReceiptLeaf hashes one receipt into its batch leaf.
func ReceiptLeaf(r *pose.Receipt) (types.Hash, error) {
	canonical, err := canonjson.Marshal(r)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Keccak256Hash(canonical), nil
}

// BuildBatch assembles the Merkle batch for epoch from accepted receipts.
func (a *Aggregator) BuildBatch(epoch uint64) (*BuiltBatch, error) {
	receipts := a.engine.AcceptedReceipts(epoch)
	if len(receipts) == 0 {
		return nil, errors.Errorf("epoch %d has no accepted receipts", epoch)
	}

	leaves := make([]types.Hash, len(receipts))
	for i, r := range receipts {
		leaf, err := ReceiptLeaf(r)
		if err != nil {
			return nil, err
		}
		leaves[i] = leaf
	}
	root := merkle.ComputeRoot(leaves)

	indices := sampleIndices(epoch, a.id, len(leaves), a.sampleCount)
	samples := make([]settlement.SampleProof, 0, len(indices))
	fold := types.Hash{}
	for _, idx := range indices {
		samples = append(samples, settlement.SampleProof{
			Leaf:        leaves[idx],
			MerkleProof: merkle.Prove(leaves, idx),
			LeafIndex:   uint32(idx),
		})
		fold = merkle.FoldSampleCommitment(fold, uint32(idx), leaves[idx])
	}
	summary := merkle.SummaryHash(epoch, root, fold, uint32(len(samples)))

	built := &BuiltBatch{
		EpochID:     epoch,
		MerkleRoot:  root,
		SummaryHash: summary,
		Leaves:      leaves,
		Samples:     samples,
	}
	a.built[epoch] = built
	return built, nil
}

// SubmitEpoch builds and submits the epoch batch on-chain.
func (a *Aggregator) SubmitEpoch(epoch uint64) (types.Hash, error) {
	built, err := a.BuildBatch(epoch)
	if err != nil {
		return types.Hash{}, err
	}
	id, err := a.contract.SubmitBatch(a.id, epoch, built.MerkleRoot, built.SummaryHash, built.Samples)
	if err != nil {
		return types.Hash{}, err
	}
	built.BatchID = id
	a.logger.Info("Epoch batch submitted", "epoch", epoch, "batch", id.TerminalString(), "receipts", len(built.Leaves))
	return id, nil
}

// Built returns the locally built batch for epoch, or nil.
func (a *Aggregator) Built(epoch uint64) *BuiltBatch {
	return a.built[epoch]
}

// sampleIndices draws a deterministic pseudo-random subset of [0, n).
// The PRF stream is keccak(seed || counter) with
// seed = keccak(epochId || aggregatorId); duplicates are skipped and the
// result is ascending, matching the contract's strictly-increasing
// leafIndex requirement.
func sampleIndices(epoch uint64, aggregator types.Address, n, want int) []int {
	if want > n {
		want = n
	}
	seed := crypto.Keccak256(crypto.Uint64BE(epoch), aggregator.Bytes())

	picked := make(map[int]struct{}, want)
	var counter uint64
	for len(picked) < want {
		draw := crypto.Keccak256(seed, crypto.Uint64BE(counter))
		counter++
		idx := int(binary.BigEndian.Uint64(draw[:8]) % uint64(n))
		picked[idx] = struct{}{}
	}
	out := make([]int, 0, want)
	for idx := range picked {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
