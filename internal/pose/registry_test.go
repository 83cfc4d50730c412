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

package pose

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
)

func keyOf(i int) types.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("key-%d", i)))
}

// mustRecord appends a key and reports its freshness, failing on error.
func mustRecord(t *testing.T, reg *ReplayRegistry, key types.Hash) bool {
	t.Helper()
	fresh, err := reg.Record(key)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	return fresh
}

func TestRecordIsExactOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonces.log")
	reg, err := OpenReplayRegistry(path, 100, 0, NewManualClock(10))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer reg.Close()

	if !mustRecord(t, reg, keyOf(1)) {
		t.Fatal("first record should be fresh")
	}
	if !reg.Seen(keyOf(1)) {
		t.Error("recorded key should be seen")
	}

	if mustRecord(t, reg, keyOf(1)) {
		t.Error("second record of the same key should not be fresh")
	}
	if reg.Size() != 1 {
		t.Errorf("size = %d, want 1", reg.Size())
	}
}

func TestRecoveryAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonces.log")
	clock := NewManualClock(10)

	reg, err := OpenReplayRegistry(path, 100, 0, clock)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if !mustRecord(t, reg, keyOf(i)) {
			t.Fatalf("key %d should be fresh", i)
		}
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := OpenReplayRegistry(path, 100, 0, clock)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if reopened.Size() != 5 {
		t.Fatalf("recovered size = %d, want 5", reopened.Size())
	}
	for i := 0; i < 5; i++ {
		if !reopened.Seen(keyOf(i)) {
			t.Errorf("key %d lost across reopen", i)
		}
	}
	// Duplicates stay duplicates after recovery.
	if mustRecord(t, reopened, keyOf(3)) {
		t.Error("recovered key should still reject replays")
	}
}

func TestRecoverySkipsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonces.log")
	clock := NewManualClock(10)

	reg, err := OpenReplayRegistry(path, 100, 0, clock)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	mustRecord(t, reg, keyOf(0))
	if err := reg.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Simulate a crash mid-append.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append failed: %v", err)
	}
	if _, err := f.WriteString(`{"key":"0x12`); err != nil {
		t.Fatalf("write torn tail failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := OpenReplayRegistry(path, 100, 0, clock)
	if err != nil {
		t.Fatalf("reopen with torn tail failed: %v", err)
	}
	defer reopened.Close()
	if reopened.Size() != 1 {
		t.Errorf("size = %d, want 1 (torn tail dropped)", reopened.Size())
	}
	if !reopened.Seen(keyOf(0)) {
		t.Error("intact entry lost during torn-tail recovery")
	}
}

func TestTTLCompactionDropsAgedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonces.log")
	clock := NewManualClock(0)
	ttl := uint64(1000)

	reg, err := OpenReplayRegistry(path, 100, ttl, clock)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	mustRecord(t, reg, keyOf(0))

	clock.SetNowMs(clock.NowMs() + 5000)
	mustRecord(t, reg, keyOf(1))

	if err := reg.Compact(); err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	if reg.Size() != 1 {
		t.Errorf("size after compact = %d, want 1", reg.Size())
	}
	if reg.Seen(keyOf(0)) {
		t.Error("aged entry should be gone")
	}
	if !reg.Seen(keyOf(1)) {
		t.Error("fresh entry should survive compaction")
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// The compacted log reloads to the same state.
	reopened, err := OpenReplayRegistry(path, 100, ttl, clock)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if reopened.Size() != 1 {
		t.Errorf("reloaded size = %d, want 1", reopened.Size())
	}
}

func TestPruneOlderThan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonces.log")
	clock := NewManualClock(0)

	reg, err := OpenReplayRegistry(path, 100, 0, clock)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer reg.Close()

	mustRecord(t, reg, keyOf(0))
	clock.SetNowMs(10_000)
	mustRecord(t, reg, keyOf(1))

	dropped, err := reg.PruneOlderThan(5_000)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if reg.Seen(keyOf(0)) {
		t.Error("old entry should be pruned")
	}
	if !reg.Seen(keyOf(1)) {
		t.Error("recent entry should survive")
	}
}

func TestRecoveryHonorsMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonces.log")
	clock := NewManualClock(10)

	reg, err := OpenReplayRegistry(path, 1000, 0, clock)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		mustRecord(t, reg, keyOf(i))
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	small, err := OpenReplayRegistry(path, 3, 0, clock)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer small.Close()
	if small.Size() != 3 {
		t.Errorf("size = %d, want the max of 3", small.Size())
	}
}
