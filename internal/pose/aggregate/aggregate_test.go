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
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/crypto/merkle"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/internal/pose"
	"github.com/chainofclaw/COC-sub002/internal/settlement"
	"github.com/chainofclaw/COC-sub002/params"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

var aggregatorID = types.HexToAddress("0x00000000000000000000000000000000000000a9")

type pipeline struct {
	engine   *pose.Engine
	contract *settlement.Contract
	clock    *pose.ManualClock
	nodeKey  *btcec.PrivateKey
}

func newPipeline(t *testing.T, receipts int) *pipeline {
	t.Helper()
	clock := pose.NewManualClock(100)
	challengerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("challenger key: %v", err)
	}
	nodeKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("node key: %v", err)
	}
	reg, err := pose.OpenReplayRegistry(filepath.Join(t.TempDir(), "nonces.log"), 10_000, 0, clock)
	if err != nil {
		t.Fatalf("registry open: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	engine := pose.NewEngine(pose.EngineConfig{
		MaxChallengesPerEpoch: receipts + 10,
		LatencyWindowMs:       10_000,
	}, clock, challengerKey, reg)

	nodeID := crypto.NodeIDFromPubkey(nodeKey.PubKey())
	for i := 0; i < receipts; i++ {
		ch, err := engine.IssueChallenge(nodeID, pose.ServiceAvailability)
		if err != nil {
			t.Fatalf("issue challenge %d: %v", i, err)
		}
		receipt := &pose.Receipt{
			ChallengeID:  ch.ChallengeID,
			NodeID:       ch.NodeID,
			ResponseAtMs: ch.IssuedAtMs + 100,
			ResponseBody: "ok",
		}
		canonical, err := receipt.CanonicalBytes()
		if err != nil {
			t.Fatalf("canonical bytes: %v", err)
		}
		sig, err := crypto.Sign(canonical, nodeKey)
		if err != nil {
			t.Fatalf("sign receipt: %v", err)
		}
		receipt.NodeSig = "0x" + hex.EncodeToString(sig)
		if err := engine.SubmitReceipt(ch, receipt); err != nil {
			t.Fatalf("submit receipt %d: %v", i, err)
		}
	}

	contract := settlement.NewContract(aggregatorID, clock, nil)
	return &pipeline{engine: engine, contract: contract, clock: clock, nodeKey: nodeKey}
}

func TestBuildBatchCommitsToReceipts(t *testing.T) {
	p := newPipeline(t, 12)
	agg := NewAggregator(aggregatorID, p.engine, p.contract, 4)

	built, err := agg.BuildBatch(100)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(built.Leaves) != 12 {
		t.Errorf("leaves = %d, want 12", len(built.Leaves))
	}
	if len(built.Samples) != 4 {
		t.Errorf("samples = %d, want 4", len(built.Samples))
	}
	if built.MerkleRoot != merkle.ComputeRoot(built.Leaves) {
		t.Error("merkle root does not commit to the leaves")
	}

	// Every sample proof verifies and indices strictly increase.
	last := int64(-1)
	for i, s := range built.Samples {
		if !merkle.Verify(s.Leaf, s.MerkleProof, built.MerkleRoot) {
			t.Errorf("sample %d proof fails verification", i)
		}
		if int64(s.LeafIndex) <= last {
			t.Errorf("sample %d index %d not strictly increasing after %d", i, s.LeafIndex, last)
		}
		last = int64(s.LeafIndex)
	}
}

func TestBuildBatchIsDeterministic(t *testing.T) {
	p := newPipeline(t, 10)
	a := NewAggregator(aggregatorID, p.engine, p.contract, 3)
	b := NewAggregator(aggregatorID, p.engine, p.contract, 3)

	builtA, err := a.BuildBatch(100)
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	builtB, err := b.BuildBatch(100)
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	if builtA.MerkleRoot != builtB.MerkleRoot {
		t.Error("two aggregators over the same receipts disagree on the root")
	}
	if builtA.SummaryHash != builtB.SummaryHash {
		t.Error("two aggregators over the same receipts disagree on the summary")
	}
}

func TestBuildBatchEmptyEpochFails(t *testing.T) {
	p := newPipeline(t, 0)
	agg := NewAggregator(aggregatorID, p.engine, p.contract, 4)
	if _, err := agg.BuildBatch(100); err == nil {
		t.Error("empty epoch should not build a batch")
	}
}

func TestSubmitAndFinalizeThroughRelayer(t *testing.T) {
	p := newPipeline(t, 8)
	agg := NewAggregator(aggregatorID, p.engine, p.contract, 4)

	id, err := agg.SubmitEpoch(100)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if p.contract.GetBatch(id) == nil {
		t.Fatal("submitted batch not found on the contract")
	}

	relayer := NewRelayer(aggregatorID, p.engine, p.contract, p.clock)
	if err := relayer.TryFinalize(100); !errors.Is(err, settlement.ErrDisputeWindowNotElapsed) {
		t.Fatalf("premature finalize: got %v, want ErrDisputeWindowNotElapsed", err)
	}

	p.clock.Advance(3)
	if err := relayer.TryFinalize(100); err != nil {
		t.Fatalf("finalize after window failed: %v", err)
	}
	if !p.contract.EpochFinalized(100) {
		t.Error("epoch should be finalized")
	}
	// Idempotent once finalized.
	if err := relayer.TryFinalize(100); err != nil {
		t.Errorf("re-finalize should succeed: %v", err)
	}
}

func TestRelayerDispatchesLivenessSlashes(t *testing.T) {
	clock := pose.NewManualClock(100)
	challengerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("challenger key: %v", err)
	}
	reg, err := pose.OpenReplayRegistry(filepath.Join(t.TempDir(), "n.log"), 1000, 0, clock)
	if err != nil {
		t.Fatalf("registry open: %v", err)
	}
	defer reg.Close()
	engine := pose.NewEngine(pose.EngineConfig{MaxChallengesPerEpoch: 50, LatencyWindowMs: 10_000}, clock, challengerKey, reg)
	contract := settlement.NewContract(aggregatorID, clock, nil)

	// A bonded node that answers nothing scores zero and draws the
	// liveness slash.
	nodeKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("node key: %v", err)
	}
	pubkey := nodeKey.PubKey().SerializeUncompressed()
	nodeID := crypto.Keccak256Hash(pubkey)
	sig, err := crypto.Sign(settlement.OwnershipMessage(nodeID, aggregatorID), nodeKey)
	if err != nil {
		t.Fatalf("ownership sign: %v", err)
	}
	bond := params.MinBond()
	if err := contract.RegisterNode(aggregatorID, bond, nodeID, pubkey, 1,
		types.Hash{}, crypto.Keccak256Hash([]byte("ep")), types.Hash{}, sig); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := engine.IssueChallenge(nodeID, pose.ServiceAvailability); err != nil {
			t.Fatalf("issue challenge %d: %v", i, err)
		}
	}

	relayer := NewRelayer(aggregatorID, engine, contract, clock)
	dispatched, err := relayer.DispatchSlashes(100)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if dispatched != 1 {
		t.Fatalf("dispatched = %d, want 1", dispatched)
	}

	// 5% liveness slash applied.
	expected := new(uint256.Int).Set(bond)
	expected.Sub(expected, new(uint256.Int).Div(bond, uint256.NewInt(20)))
	if got := contract.GetNode(nodeID).BondAmount; !got.Eq(expected) {
		t.Errorf("bond after slash = %s, want %s", got, expected)
	}

	// Re-dispatch with identical evidence is a no-op.
	dispatched, err = relayer.DispatchSlashes(100)
	if err != nil {
		t.Fatalf("re-dispatch failed: %v", err)
	}
	if dispatched != 0 {
		t.Errorf("re-dispatched = %d, want 0", dispatched)
	}
}

func TestObserverDisputesOmittedSample(t *testing.T) {
	p := newPipeline(t, 6)
	agg := NewAggregator(aggregatorID, p.engine, p.contract, 3)
	built, err := agg.BuildBatch(100)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// Submit a doctored sample set: drop the last required sample and
	// replace the summary accordingly so the submission itself validates.
	samples := built.Samples[:len(built.Samples)-1]
	var fold types.Hash
	for _, s := range samples {
		fold = merkle.FoldSampleCommitment(fold, s.LeafIndex, s.Leaf)
	}
	summary := merkle.SummaryHash(100, built.MerkleRoot, fold, uint32(len(samples)))
	id, err := p.contract.SubmitBatch(aggregatorID, 100, built.MerkleRoot, summary, samples)
	if err != nil {
		t.Fatalf("doctored submit failed: %v", err)
	}

	observer := NewObserver(aggregatorID, p.contract, 3)
	disputed, err := observer.Inspect(id, built.Leaves)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !disputed {
		t.Fatal("observer should dispute the omitted sample")
	}
	if !p.contract.GetBatch(id).Disputed {
		t.Error("batch should be marked disputed")
	}
}

func TestObserverAcceptsHonestBatch(t *testing.T) {
	p := newPipeline(t, 6)
	agg := NewAggregator(aggregatorID, p.engine, p.contract, 3)
	id, err := agg.SubmitEpoch(100)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	observer := NewObserver(aggregatorID, p.contract, 3)
	disputed, err := observer.Inspect(id, agg.Built(100).Leaves)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if disputed {
		t.Error("honest batch should not be disputed")
	}
	if p.contract.GetBatch(id).Disputed {
		t.Error("honest batch marked disputed on the contract")
	}
}
