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

package settlement

import (
	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/crypto/merkle"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/params"
)

// SubmitBatch records an epoch batch after full sample validation:
// every proof must verify against the root, leaf indices must strictly
// increase, no leaf may repeat, and the index-commitment fold must equal
// the caller-provided summary hash.
func (c *Contract) SubmitBatch(aggregator types.Address, epochID uint64, merkleRoot, summaryHash types.Hash, proofs []SampleProof) (types.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epochID > c.clock.CurrentEpoch() {
		return types.Hash{}, ErrInvalidEpoch
	}
	if c.epochFinalized[epochID] {
		return types.Hash{}, ErrEpochAlreadyFinalized
	}
	if merkleRoot.IsZero() || summaryHash.IsZero() {
		return types.Hash{}, ErrInvalidBatch
	}
	if len(proofs) < 1 || len(proofs) > params.MaxSampleProofs {
		return types.Hash{}, ErrInvalidBatch
	}

	var (
		fold      types.Hash // c0 = 0
		lastIndex int64 = -1
		leaves    = make(map[types.Hash]struct{}, len(proofs))
	)
	for _, proof := range proofs {
		if proof.Leaf.IsZero() {
			return types.Hash{}, ErrInvalidBatch
		}
		if int64(proof.LeafIndex) <= lastIndex {
			return types.Hash{}, ErrInvalidBatch
		}
		lastIndex = int64(proof.LeafIndex)
		if _, dup := leaves[proof.Leaf]; dup {
			return types.Hash{}, ErrInvalidBatch
		}
		leaves[proof.Leaf] = struct{}{}
		if !merkle.Verify(proof.Leaf, proof.MerkleProof, merkleRoot) {
			return types.Hash{}, ErrInvalidBatch
		}
		fold = merkle.FoldSampleCommitment(fold, proof.LeafIndex, proof.Leaf)
	}
	if merkle.SummaryHash(epochID, merkleRoot, fold, uint32(len(proofs))) != summaryHash {
		return types.Hash{}, ErrInvalidBatch
	}

	id := batchID(epochID, merkleRoot, summaryHash, aggregator)
	if _, dup := c.batches[id]; dup {
		return types.Hash{}, ErrBatchAlreadySubmitted
	}

	now := c.clock.CurrentEpoch()
	c.batches[id] = &BatchRecord{
		BatchID:              id,
		EpochID:              epochID,
		MerkleRoot:           merkleRoot,
		SummaryHash:          summaryHash,
		Aggregator:           aggregator,
		SubmittedAtEpoch:     now,
		DisputeDeadlineEpoch: now + params.DisputeWindowEpochs,
		sampleLeaves:         leaves,
		sampleCount:          uint32(len(proofs)),
	}
	c.epochBatchIDs[epochID] = append(c.epochBatchIDs[epochID], id)

	c.logger.Info("Batch submitted", "epoch", epochID, "batch", id.TerminalString(), "samples", len(proofs))
	return id, nil
}

// ChallengeBatch disputes a batch by exhibiting a receipt leaf the
// aggregator omitted from the sampled set: the proof must verify against
// the batch root while the leaf must NOT be among the sampled leaves.
// Slasher role only; replay-keyed per (batch, leaf).
func (c *Contract) ChallengeBatch(caller types.Address, id types.Hash, receiptLeaf types.Hash, proof []types.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.slashers[caller] {
		return ErrNotSlasher
	}
	batch, ok := c.batches[id]
	if !ok {
		return ErrInvalidBatch
	}
	if batch.Finalized {
		return ErrBatchAlreadyFinalized
	}
	if batch.Disputed {
		return ErrBatchAlreadyDisputed
	}
	if c.clock.CurrentEpoch() > batch.DisputeDeadlineEpoch {
		return ErrDisputeWindowClosed
	}
	if !merkle.Verify(receiptLeaf, proof, batch.MerkleRoot) {
		return ErrInvalidBatch
	}
	if _, sampled := batch.sampleLeaves[receiptLeaf]; sampled {
		// The aggregator did include this leaf; nothing was omitted.
		return ErrInvalidBatch
	}

	disputeKey := crypto.Keccak256Hash([]byte("batch-dispute"), id.Bytes(), receiptLeaf.Bytes())
	if _, used := c.usedDisputes[disputeKey]; used {
		return ErrEvidenceAlreadyUsed
	}
	c.usedDisputes[disputeKey] = struct{}{}

	batch.Disputed = true
	c.logger.Warn("Batch disputed", "batch", id.TerminalString(), "epoch", batch.EpochID, "by", caller)
	return nil
}

// FinalizeEpoch closes an epoch after its dispute window: undisputed,
// unfinalized batches past their deadline fold into the rolling
// settlement root keccak(prev || summaryHash || merkleRoot || aggregator).
// At least one batch must finalize.
func (c *Contract) FinalizeEpoch(epochID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epochFinalized[epochID] {
		return ErrEpochAlreadyFinalized
	}
	now := c.clock.CurrentEpoch()
	if now <= epochID+params.DisputeWindowEpochs {
		return ErrDisputeWindowNotElapsed
	}

	var (
		rolling types.Hash
		count   uint32
	)
	for _, id := range c.epochBatchIDs[epochID] {
		batch := c.batches[id]
		if batch.Disputed || batch.Finalized {
			continue
		}
		if now <= batch.DisputeDeadlineEpoch {
			continue
		}
		batch.Finalized = true
		rolling = crypto.Keccak256Hash(rolling.Bytes(), batch.SummaryHash.Bytes(), batch.MerkleRoot.Bytes(), batch.Aggregator.Bytes())
		count++
	}
	if count == 0 {
		return ErrNoFinalizableBatch
	}

	c.epochSettlementRoot[epochID] = rolling
	c.epochValidBatchCount[epochID] = count
	c.epochFinalized[epochID] = true

	c.logger.Info("Epoch finalized", "epoch", epochID, "batches", count, "root", rolling.TerminalString())
	return nil
}
