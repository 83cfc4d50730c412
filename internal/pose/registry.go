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
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// ReplayRegistry is the persistent exact-once set behind receipt and
// nonce replay protection. Uniqueness is checked in O(1) in memory; every
// insertion is durably appended to the log. Compaction rewrites the log
// discarding entries older than the TTL. The hot path never rewrites the
// full map.
type ReplayRegistry struct {
	mu sync.Mutex

	path    string
	file    *os.File
	writer  *bufio.Writer
	entries map[types.Hash]uint64 // key -> timestampMs
	maxSize int
	ttlMs   uint64
	clock   EpochClock
	logger  log.Logger
}

// registryRecord is one appended line.
type registryRecord struct {
	Key         types.Hash `json:"key"`
	TimestampMs uint64     `json:"timestampMs"`
}

// OpenReplayRegistry loads (creating if necessary) the registry at path.
// Recovery loads at most maxSize entries younger than ttlMs.
func OpenReplayRegistry(path string, maxSize int, ttlMs uint64, clock EpochClock) (*ReplayRegistry, error) {
	if clock == nil {
		clock = WallClock{}
	}
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "registry dir")
	}

	r := &ReplayRegistry{
		path:    path,
		entries: make(map[types.Hash]uint64),
		maxSize: maxSize,
		ttlMs:   ttlMs,
		clock:   clock,
		logger:  log.New("module", "pose-registry"),
	}
	if err := r.recover(); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "registry open")
	}
	r.file = file
	r.writer = bufio.NewWriter(file)
	return r, nil
}

func (r *ReplayRegistry) recover() error {
	file, err := os.Open(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "registry recover")
	}
	defer file.Close()

	cutoff := uint64(0)
	now := r.clock.NowMs()
	if r.ttlMs > 0 && now > r.ttlMs {
		cutoff = now - r.ttlMs
	}
	scanner := bufio.NewScanner(file)
	loaded, skipped := 0, 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec registryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// A torn tail write is expected after a crash; everything
			// before it already loaded.
			skipped++
			continue
		}
		if rec.TimestampMs < cutoff {
			skipped++
			continue
		}
		if len(r.entries) >= r.maxSize {
			break
		}
		r.entries[rec.Key] = rec.TimestampMs
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "registry scan")
	}
	r.logger.Info("Replay registry recovered", "path", r.path, "loaded", loaded, "skipped", skipped)
	return nil
}

// Seen reports whether key is recorded.
func (r *ReplayRegistry) Seen(key types.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Record inserts key exactly once; a duplicate returns false without
// touching the log. A successful insert is durable before return.
func (r *ReplayRegistry) Record(key types.Hash) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.entries[key]; dup {
		return false, nil
	}
	now := r.clock.NowMs()
	line, err := json.Marshal(&registryRecord{Key: key, TimestampMs: now})
	if err != nil {
		return false, err
	}
	if _, err := r.writer.Write(append(line, '\n')); err != nil {
		return false, errors.Wrap(err, "registry append")
	}
	if err := r.writer.Flush(); err != nil {
		return false, errors.Wrap(err, "registry flush")
	}
	if err := r.file.Sync(); err != nil {
		return false, errors.Wrap(err, "registry sync")
	}
	r.entries[key] = now

	if len(r.entries) > r.maxSize {
		if err := r.compactLocked(); err != nil {
			r.logger.Error("Registry compaction failed", "err", err)
		}
	}
	return true, nil
}

// Size returns the in-memory entry count.
func (r *ReplayRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Compact rewrites the log dropping entries older than the TTL.
func (r *ReplayRegistry) Compact() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.compactLocked()
}

// PruneOlderThan drops entries with timestamps before cutoffMs and
// compacts. Returns the number of dropped entries.
func (r *ReplayRegistry) PruneOlderThan(cutoffMs uint64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for key, ts := range r.entries {
		if ts < cutoffMs {
			delete(r.entries, key)
			dropped++
		}
	}
	if dropped == 0 {
		return 0, nil
	}
	return dropped, r.compactLocked()
}

func (r *ReplayRegistry) compactLocked() error {
	cutoff := uint64(0)
	now := r.clock.NowMs()
	if r.ttlMs > 0 && now > r.ttlMs {
		cutoff = now - r.ttlMs
	}

	tmpPath := r.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "compact open")
	}
	w := bufio.NewWriter(tmp)
	kept := make(map[types.Hash]uint64, len(r.entries))
	for key, ts := range r.entries {
		if ts < cutoff {
			continue
		}
		line, err := json.Marshal(&registryRecord{Key: key, TimestampMs: ts})
		if err != nil {
			tmp.Close()
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return errors.Wrap(err, "compact write")
		}
		kept[key] = ts
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "compact flush")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "compact sync")
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Swap the live writer onto the compacted log.
	if r.writer != nil {
		_ = r.writer.Flush()
	}
	if r.file != nil {
		_ = r.file.Close()
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return errors.Wrap(err, "compact rename")
	}
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "compact reopen")
	}
	r.file = file
	r.writer = bufio.NewWriter(file)
	before := len(r.entries)
	r.entries = kept
	r.logger.Info("Replay registry compacted", "before", before, "after", len(kept))
	return nil
}

// Close flushes and releases the log file.
func (r *ReplayRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer != nil {
		_ = r.writer.Flush()
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
