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

package aggregate

import (
	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/crypto/merkle"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/internal/pose"
	"github.com/chainofclaw/COC-sub002/internal/pose/canonjson"
	"github.com/chainofclaw/COC-sub002/internal/settlement"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// Liveness slashing: scores below the threshold draw reason code 3 (5%).
const (
	livenessSlashThreshold = 0.5
	livenessReasonCode     = 3
)

// Relayer drives the post-submission half of the pipeline: finalizing
// epochs whose dispute window elapsed and dispatching slashes derived
// from epoch scoring.
type Relayer struct {
	id       types.Address
	engine   *pose.Engine
	contract *settlement.Contract
	clock    pose.EpochClock
	logger   log.Logger
}

// NewRelayer binds a relayer identity (must hold the slasher role for
// slash dispatch).
func NewRelayer(id types.Address, engine *pose.Engine, contract *settlement.Contract, clock pose.EpochClock) *Relayer {
	if clock == nil {
		clock = pose.WallClock{}
	}
	return &Relayer{
		id:       id,
		engine:   engine,
		contract: contract,
		clock:    clock,
		logger:   log.New("module", "pose-relayer"),
	}
}

// TryFinalize finalizes epoch when its window has elapsed and no
// outstanding disputes block every batch. Idempotent from the caller's
// perspective: an already-finalized epoch reports success.
func (r *Relayer) TryFinalize(epoch uint64) error {
	if r.contract.EpochFinalized(epoch) {
		return nil
	}
	err := r.contract.FinalizeEpoch(epoch)
	switch {
	case err == nil:
		r.logger.Info("Epoch finalized", "epoch", epoch, "batches", r.contract.EpochValidBatchCount(epoch))
		return nil
	case errors.Is(err, settlement.ErrDisputeWindowNotElapsed):
		return err
	default:
		return err
	}
}

// DispatchSlashes converts epoch scores into liveness slashes. The raw
// evidence is the canonical score record, so the evidence hash is
// reproducible by any verifier with the same receipts.
func (r *Relayer) DispatchSlashes(epoch uint64) (int, error) {
	scores := r.engine.Scores(epoch)
	dispatched := 0
	for _, score := range scores {
		if score.Combined >= livenessSlashThreshold {
			continue
		}
		raw, err := canonjson.Marshal(&score)
		if err != nil {
			return dispatched, err
		}
		evidence := settlement.SlashEvidence{
			NodeID:       score.NodeID,
			EvidenceHash: crypto.Keccak256Hash(raw),
			ReasonCode:   livenessReasonCode,
			RawEvidence:  raw,
		}
		if _, err := r.contract.Slash(r.id, score.NodeID, evidence); err != nil {
			if errors.Is(err, settlement.ErrEvidenceAlreadyUsed) || errors.Is(err, settlement.ErrNodeNotFound) || errors.Is(err, settlement.ErrNodeNotSlashable) {
				continue
			}
			return dispatched, err
		}
		dispatched++
	}
	return dispatched, nil
}

// =============================================================================
// Dispute observer
// =============================================================================

// Observer watches submitted batches for omission: an independent
// verifier that collected the same receipts can prove a leaf belongs to
// the batch tree yet was left out of the sampled set, and dispute before
// the window closes.
type Observer struct {
	id          types.Address
	contract    *settlement.Contract
	sampleCount int
	logger      log.Logger
}

// NewObserver binds an observer identity (slasher role required to file
// disputes). sampleCount is the protocol sample size the aggregator was
// bound to.
func NewObserver(id types.Address, contract *settlement.Contract, sampleCount int) *Observer {
	if sampleCount <= 0 {
		sampleCount = defaultSampleCount
	}
	return &Observer{id: id, contract: contract, sampleCount: sampleCount, logger: log.New("module", "pose-observer")}
}

// Inspect checks a batch against the observer's own leaf set. It
// recomputes the deterministic sample selection the aggregator was bound
// to; when a required leaf is absent from the sampled set, the observer
// proves the omission and files a challenge before the window closes.
func (o *Observer) Inspect(batchID types.Hash, leaves []types.Hash) (bool, error) {
	batch := o.contract.GetBatch(batchID)
	if batch == nil {
		return false, settlement.ErrInvalidBatch
	}
	if batch.Finalized || batch.Disputed {
		return false, nil
	}
	if merkle.ComputeRoot(leaves) != batch.MerkleRoot {
		// Different receipt set entirely; omission cannot be proven from
		// this vantage point.
		return false, nil
	}
	if _, ok := o.contract.GetBatchSampleInfo(batchID); !ok {
		return false, settlement.ErrInvalidBatch
	}
	required := sampleIndices(batch.EpochID, batch.Aggregator, len(leaves), o.sampleCount)
	for _, idx := range required {
		leaf := leaves[idx]
		if o.contract.IsSampleLeaf(batchID, leaf) {
			continue
		}
		proof := merkle.Prove(leaves, idx)
		if err := o.contract.ChallengeBatch(o.id, batchID, leaf, proof); err != nil {
			return false, err
		}
		o.logger.Warn("Filed batch dispute", "batch", batchID.TerminalString(), "leafIndex", idx)
		return true, nil
	}
	return false, nil
}
