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

// Package pose implements the Proof-of-Service engine: challenge issuance
// under per-epoch quotas, receipt verification with replay protection,
// and per-epoch service scoring consumed by the aggregator.
package pose

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/internal/pose/canonjson"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

var receiptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "coc_pose_receipts_total",
	Help: "PoSe receipts by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.DefaultRegisterer.MustRegister(receiptCounter)
}

// Service kinds probed by challenges.
const (
	ServiceAvailability uint8 = 1
	ServiceStorage      uint8 = 2
)

// Challenge is one issued probe.
type Challenge struct {
	ChallengeID   types.Hash `json:"challengeId"`
	NodeID        types.Hash `json:"nodeId"`
	EpochID       string     `json:"epochId"` // decimal string (BigInt-safe)
	ServiceKind   uint8      `json:"serviceKind"`
	IssuedAtMs    uint64     `json:"issuedAtMs"`
	ChallengerSig string     `json:"challengerSig,omitempty"`
}

// Receipt is a probed node's signed answer.
type Receipt struct {
	ChallengeID  types.Hash `json:"challengeId"`
	NodeID       types.Hash `json:"nodeId"`
	ResponseAtMs uint64     `json:"responseAtMs"`
	ResponseBody string     `json:"responseBody"`
	NodeSig      string     `json:"nodeSig,omitempty"`
}

// CanonicalBytes is the signed byte form: the canonical serialization of
// the receipt with the signature field cleared.
func (r *Receipt) CanonicalBytes() ([]byte, error) {
	unsigned := *r
	unsigned.NodeSig = ""
	return canonjson.Marshal(&unsigned)
}

// CanonicalBytes is the challenger-signed byte form.
func (c *Challenge) CanonicalBytes() ([]byte, error) {
	unsigned := *c
	unsigned.ChallengerSig = ""
	return canonjson.Marshal(&unsigned)
}

// receiptReplayKey derives the exact-once key for an accepted receipt.
func receiptReplayKey(challengeID types.Hash) types.Hash {
	return crypto.Keccak256Hash([]byte("pose-receipt"), challengeID.Bytes())
}

// EngineConfig parameterizes the PoSe engine.
type EngineConfig struct {
	MaxChallengesPerEpoch int
	LatencyWindowMs       uint64
}

// NodeEpochStats accumulates one node's standing within an epoch.
type NodeEpochStats struct {
	ExpectedChallenges int
	ReceivedReceipts   int
	StorageChallenges  int
	ValidStorageProofs int
	SizeWeight         float64
}

// Score is the per-epoch service score of one node.
type Score struct {
	NodeID       types.Hash
	EpochID      uint64
	UptimeScore  float64
	StorageScore float64
	Combined     float64
}

// Engine issues challenges and accepts receipts.
type Engine struct {
	cfg     EngineConfig
	clock   EpochClock
	signer  *btcec.PrivateKey
	replays *ReplayRegistry
	logger  log.Logger

	mu sync.Mutex
	// quota counts issued challenges per (node, epoch).
	quota map[quotaKey]int
	// issued challenges by id.
	issued map[types.Hash]*Challenge
	// accepted receipts grouped per epoch for the aggregator.
	accepted map[uint64][]*Receipt
	// stats per (node, epoch) drive scoring.
	stats map[quotaKey]*NodeEpochStats
}

type quotaKey struct {
	node  types.Hash
	epoch uint64
}

// NewEngine creates the PoSe engine. signer is the challenger key.
func NewEngine(cfg EngineConfig, clock EpochClock, signer *btcec.PrivateKey, replays *ReplayRegistry) *Engine {
	if clock == nil {
		clock = WallClock{}
	}
	if cfg.MaxChallengesPerEpoch <= 0 {
		cfg.MaxChallengesPerEpoch = 60
	}
	if cfg.LatencyWindowMs == 0 {
		cfg.LatencyWindowMs = 30_000
	}
	return &Engine{
		cfg:      cfg,
		clock:    clock,
		signer:   signer,
		replays:  replays,
		logger:   log.New("module", "pose"),
		quota:    make(map[quotaKey]int),
		issued:   make(map[types.Hash]*Challenge),
		accepted: make(map[uint64][]*Receipt),
		stats:    make(map[quotaKey]*NodeEpochStats),
	}
}

// CurrentEpoch exposes the engine clock.
func (e *Engine) CurrentEpoch() uint64 { return e.clock.CurrentEpoch() }

// NowMs exposes the engine clock.
func (e *Engine) NowMs() uint64 { return e.clock.NowMs() }

// IssueChallenge mints a signed challenge against nodeID, or nil when the
// node's quota for the current epoch is exhausted.
func (e *Engine) IssueChallenge(nodeID types.Hash, serviceKind uint8) (*Challenge, error) {
	epoch := e.clock.CurrentEpoch()
	key := quotaKey{node: nodeID, epoch: epoch}

	e.mu.Lock()
	e.quota[key]++
	if e.quota[key] > e.cfg.MaxChallengesPerEpoch {
		e.mu.Unlock()
		return nil, errors.ErrQuotaExhausted
	}
	e.mu.Unlock()

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	var challengerPub []byte
	if e.signer != nil {
		challengerPub = e.signer.PubKey().SerializeUncompressed()
	}
	challengeID := crypto.Keccak256Hash(challengerPub, nodeID.Bytes(), crypto.Uint64BE(epoch), nonce[:])

	ch := &Challenge{
		ChallengeID: challengeID,
		NodeID:      nodeID,
		EpochID:     decimalU64(epoch),
		ServiceKind: serviceKind,
		IssuedAtMs:  e.clock.NowMs(),
	}
	if e.signer != nil {
		canonical, err := ch.CanonicalBytes()
		if err != nil {
			return nil, err
		}
		sig, err := crypto.Sign(canonical, e.signer)
		if err != nil {
			return nil, err
		}
		ch.ChallengerSig = "0x" + hex.EncodeToString(sig)
	}

	e.mu.Lock()
	e.issued[challengeID] = ch
	st := e.statsLocked(key)
	st.ExpectedChallenges++
	if serviceKind == ServiceStorage {
		st.StorageChallenges++
	}
	e.mu.Unlock()

	e.logger.Debug("Challenge issued", "node", nodeID.TerminalString(), "epoch", epoch, "kind", serviceKind)
	return ch, nil
}

func (e *Engine) statsLocked(key quotaKey) *NodeEpochStats {
	st, ok := e.stats[key]
	if !ok {
		st = &NodeEpochStats{SizeWeight: 1}
		e.stats[key] = st
	}
	return st
}

// SubmitReceipt verifies and records a receipt. challenge may re-bind the
// full issued challenge object; nil resolves it from the issued set.
func (e *Engine) SubmitReceipt(challenge *Challenge, receipt *Receipt) error {
	e.mu.Lock()
	issued, known := e.issued[receipt.ChallengeID]
	e.mu.Unlock()
	if !known {
		return errors.ErrUnknownChallenge
	}
	if challenge != nil && challenge.ChallengeID != issued.ChallengeID {
		return errors.ErrUnknownChallenge
	}

	if receipt.NodeID != issued.NodeID {
		return errors.Wrap(errors.ErrReceiptSignature, "receipt node differs from challenged node")
	}

	// Node signature over the canonical receipt bytes must recover the
	// node id (keccak of the signing pubkey).
	canonical, err := receipt.CanonicalBytes()
	if err != nil {
		return err
	}
	recovered, err := crypto.RecoverNodeID(canonical, types.FromHex(receipt.NodeSig))
	if err != nil || recovered != receipt.NodeID {
		receiptCounter.WithLabelValues("bad_signature").Inc()
		return errors.ErrReceiptSignature
	}

	// Latency window.
	if receipt.ResponseAtMs < issued.IssuedAtMs ||
		receipt.ResponseAtMs-issued.IssuedAtMs > e.cfg.LatencyWindowMs {
		receiptCounter.WithLabelValues("late").Inc()
		return errors.ErrLatencyWindow
	}

	// Exact-once: persist the replay key before accepting.
	fresh, err := e.replays.Record(receiptReplayKey(receipt.ChallengeID))
	if err != nil {
		return err
	}
	if !fresh {
		receiptCounter.WithLabelValues("replay").Inc()
		return errors.ErrReceiptReplay
	}

	epoch, err := parseDecimalU64(issued.EpochID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.accepted[epoch] = append(e.accepted[epoch], receipt)
	st := e.statsLocked(quotaKey{node: receipt.NodeID, epoch: epoch})
	st.ReceivedReceipts++
	if issued.ServiceKind == ServiceStorage && receipt.ResponseBody != "" {
		st.ValidStorageProofs++
	}
	e.mu.Unlock()

	receiptCounter.WithLabelValues("accepted").Inc()
	return nil
}

// AcceptedReceipts returns the receipts accepted within epoch.
func (e *Engine) AcceptedReceipts(epoch uint64) []*Receipt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Receipt{}, e.accepted[epoch]...)
}

// Scores computes per-node scores for epoch:
//
//	uptime  = min(1, received/expected)
//	storage = (validStorageProofs/storageChallenges) * sizeWeight
//	combined = 0.6*uptime + 0.4*storage (uptime-only when no storage
//	challenges ran)
func (e *Engine) Scores(epoch uint64) []Score {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Score
	for key, st := range e.stats {
		if key.epoch != epoch || st.ExpectedChallenges == 0 {
			continue
		}
		uptime := float64(st.ReceivedReceipts) / float64(st.ExpectedChallenges)
		if uptime > 1 {
			uptime = 1
		}
		storage := 0.0
		combined := uptime
		if st.StorageChallenges > 0 {
			storage = float64(st.ValidStorageProofs) / float64(st.StorageChallenges) * st.SizeWeight
			combined = 0.6*uptime + 0.4*storage
		}
		out = append(out, Score{
			NodeID:       key.node,
			EpochID:      epoch,
			UptimeScore:  uptime,
			StorageScore: storage,
			Combined:     combined,
		})
	}
	return out
}

// decimalU64 renders v as a decimal string (BigInt-safe JSON).
func decimalU64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// parseDecimalU64 parses a decimal-string epoch id.
func parseDecimalU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid epoch id %q", s)
	}
	return v, nil
}
