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
	"context"
	"time"

	"github.com/chainofclaw/COC-sub002/internal/pose"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/modules/kv"
	"github.com/chainofclaw/COC-sub002/modules/rawdb"
	"github.com/chainofclaw/COC-sub002/utils"
)

// Pruner retires aged PoSe nonce-registry entries on a fixed cadence and
// records its statistics under the P/ table for coc_prunerStats.
type Pruner struct {
	store     kv.Store
	registry  *pose.ReplayRegistry
	retention time.Duration
	logger    log.Logger
}

// NewPruner wires the pruner; retentionDays bounds registry entry age.
func NewPruner(store kv.Store, registry *pose.ReplayRegistry, retentionDays int) *Pruner {
	return &Pruner{
		store:     store,
		registry:  registry,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    log.New("module", "pruner"),
	}
}

// Start begins the hourly prune loop.
func (p *Pruner) Start(ctx context.Context) {
	utils.RunEvery(ctx, time.Hour, func() {
		p.RunOnce()
	})
}

// RunOnce performs one prune pass.
func (p *Pruner) RunOnce() {
	cutoff := uint64(time.Now().Add(-p.retention).UnixMilli())

	scanned := uint64(p.registry.Size())
	dropped, err := p.registry.PruneOlderThan(cutoff)
	if err != nil {
		p.logger.Error("Registry prune failed", "err", err)
		return
	}

	stats, err := rawdb.ReadPrunerStats(p.store)
	if err != nil {
		p.logger.Error("Pruner stats read failed", "err", err)
		stats = &rawdb.PrunerStats{}
	}
	stats.LastRunMs = uint64(time.Now().UnixMilli())
	stats.EntriesScanned += scanned
	stats.EntriesDeleted += uint64(dropped)
	stats.Runs++
	if err := rawdb.WritePrunerStats(p.store, stats); err != nil {
		p.logger.Error("Pruner stats write failed", "err", err)
	}
	if dropped > 0 {
		p.logger.Info("Nonce registry pruned", "dropped", dropped, "remaining", p.registry.Size())
	}
}
