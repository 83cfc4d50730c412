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

package node

import (
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/conf"
	"github.com/chainofclaw/COC-sub002/internal"
	"github.com/chainofclaw/COC-sub002/internal/evm"
	"github.com/chainofclaw/COC-sub002/internal/txspool"
	"github.com/chainofclaw/COC-sub002/modules/kv"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

func TestTokenBucketRefills(t *testing.T) {
	limiter := NewTokenBucketLimiter(2, 100, 10)

	if !limiter.Allow("client") || !limiter.Allow("client") {
		t.Fatal("first two requests should pass")
	}
	if limiter.Allow("client") {
		t.Fatal("third request should be limited")
	}

	// 100 tokens/sec: a short sleep refills at least one.
	time.Sleep(50 * time.Millisecond)
	if !limiter.Allow("client") {
		t.Error("bucket should refill after sleeping")
	}
}

func TestTokenBucketIsolatesKeys(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 0.001, 10)
	if !limiter.Allow("a") {
		t.Fatal("fresh key a should pass")
	}
	if limiter.Allow("a") {
		t.Error("exhausted key a should be limited")
	}
	if !limiter.Allow("b") {
		t.Error("key b has its own bucket")
	}
}

func TestTokenBucketEvictsLRUWhenFull(t *testing.T) {
	limiter := NewTokenBucketLimiter(1, 0.001, 2)
	if !limiter.Allow("a") || !limiter.Allow("b") {
		t.Fatal("first two keys should pass")
	}
	if !limiter.Allow("c") { // evicts "a"
		t.Fatal("third key should pass and evict the oldest")
	}
	if limiter.Len() != 2 {
		t.Errorf("bucket count = %d, want 2", limiter.Len())
	}

	// "a" was evicted, so it gets a fresh bucket.
	if !limiter.Allow("a") {
		t.Error("evicted key should get a fresh bucket")
	}
	// "c" is still tracked and exhausted.
	if limiter.Allow("c") {
		t.Error("tracked key c should still be exhausted")
	}
}

func newHealthChain(t *testing.T) *internal.BlockChain {
	t.Helper()
	engine := evm.NewNativeEngine(1337)
	pool := txspool.NewTxsPool(1337, uint256.NewInt(1))
	return internal.NewBlockChain(internal.ChainConfig{
		ChainID:       1337,
		NodeID:        "0x1111111111111111111111111111111111111111",
		Validators:    []string{"0x1111111111111111111111111111111111111111"},
		SignatureMode: conf.AuthModeOff,
	}, engine, pool)
}

func TestHealthDegradedWithoutBlocksOrPeers(t *testing.T) {
	chain := newHealthChain(t)
	store := kv.OpenMemory()
	defer store.Close()

	h := NewHealthServer(chain, nil, store, time.Minute, nil)
	report := h.Evaluate()
	if report.Status != StatusDegraded {
		t.Errorf("overall status = %s, want degraded", report.Status)
	}
	if report.Checks["chain"].Status != StatusDegraded {
		t.Errorf("chain check = %s, want degraded", report.Checks["chain"].Status)
	}
	if report.Checks["peers"].Status != StatusDegraded {
		t.Errorf("peers check = %s, want degraded", report.Checks["peers"].Status)
	}
	if report.Checks["storage"].Status != StatusHealthy {
		t.Errorf("storage check = %s, want healthy", report.Checks["storage"].Status)
	}
	if report.Checks["mempool"].Status != StatusHealthy {
		t.Errorf("mempool check = %s, want healthy", report.Checks["mempool"].Status)
	}
}

func TestHealthChainRecoversAfterBlock(t *testing.T) {
	chain := newHealthChain(t)
	store := kv.OpenMemory()
	defer store.Close()
	if _, err := chain.ProposeNextBlock(); err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	h := NewHealthServer(chain, nil, store, time.Minute, nil)
	report := h.Evaluate()
	if report.Checks["chain"].Status != StatusHealthy {
		t.Errorf("chain check = %s, want healthy", report.Checks["chain"].Status)
	}
	if report.Checks["blockFreshness"].Status != StatusHealthy {
		t.Errorf("freshness check = %s, want healthy", report.Checks["blockFreshness"].Status)
	}
}

func TestHealthUnhealthyWebSocket(t *testing.T) {
	chain := newHealthChain(t)
	store := kv.OpenMemory()
	defer store.Close()
	if _, err := chain.ProposeNextBlock(); err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	h := NewHealthServer(chain, nil, store, time.Minute, func() bool { return false })
	report := h.Evaluate()
	if report.Status != StatusUnhealthy {
		t.Errorf("overall status = %s, want unhealthy", report.Status)
	}
	if report.Checks["websocket"].Status != StatusUnhealthy {
		t.Errorf("websocket check = %s, want unhealthy", report.Checks["websocket"].Status)
	}
}

func TestNodeRejectsInvalidConfig(t *testing.T) {
	cfg := conf.Default() // no validators
	cfg.NodeCfg.DataDir = t.TempDir()
	_, err := New(cfg)
	if err == nil {
		t.Fatal("config without validators should be rejected")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T", err)
	}
	if exitErr.Code != ExitBadConfig {
		t.Errorf("exit code = %d, want %d", exitErr.Code, ExitBadConfig)
	}
}

func TestNodeAssemblesAndStops(t *testing.T) {
	cfg := conf.Default()
	cfg.NodeCfg.DataDir = t.TempDir()
	cfg.ChainCfg.Validators = []string{"0x1111111111111111111111111111111111111111"}

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Errorf("stop failed: %v", err)
	}
}
