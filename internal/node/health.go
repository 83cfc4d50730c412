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
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/chainofclaw/COC-sub002/internal"
	"github.com/chainofclaw/COC-sub002/internal/p2p"
	"github.com/chainofclaw/COC-sub002/modules/kv"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthCheck is one named probe result.
type HealthCheck struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthReport is the full probe response.
type HealthReport struct {
	Status string                 `json:"status"`
	Checks map[string]HealthCheck `json:"checks"`
}

// HealthServer evaluates node liveness for orchestration probes.
type HealthServer struct {
	chain  *internal.BlockChain
	p2pSrv *p2p.Server
	store  kv.Store

	// blockFreshnessWindow bounds how stale the tip may be before the
	// chain check degrades (proposer cadence plus slack).
	blockFreshnessWindow time.Duration

	// wsHealthy is toggled by the websocket server lifecycle.
	wsHealthy func() bool

	// memoryLimitBytes degrades the memory check when exceeded.
	memoryLimitBytes uint64
}

// NewHealthServer wires the probe inputs. wsHealthy may be nil.
func NewHealthServer(chain *internal.BlockChain, p2pSrv *p2p.Server, store kv.Store, freshness time.Duration, wsHealthy func() bool) *HealthServer {
	if freshness <= 0 {
		freshness = time.Minute
	}
	return &HealthServer{
		chain:                chain,
		p2pSrv:               p2pSrv,
		store:                store,
		blockFreshnessWindow: freshness,
		wsHealthy:            wsHealthy,
		memoryLimitBytes:     4 << 30,
	}
}

// Evaluate runs every probe.
func (h *HealthServer) Evaluate() *HealthReport {
	checks := make(map[string]HealthCheck)

	// chain: a tip must exist once the node has been up long enough to
	// propose; an empty chain is degraded, not dead.
	tip := h.chain.Tip()
	if tip == nil {
		checks["chain"] = HealthCheck{Status: StatusDegraded, Detail: "no blocks yet"}
		checks["blockFreshness"] = HealthCheck{Status: StatusDegraded, Detail: "no blocks yet"}
	} else {
		checks["chain"] = HealthCheck{Status: StatusHealthy}
		age := time.Since(time.UnixMilli(int64(tip.TimestampMs)))
		if age > h.blockFreshnessWindow {
			checks["blockFreshness"] = HealthCheck{Status: StatusDegraded, Detail: "tip is " + age.Truncate(time.Second).String() + " old"}
		} else {
			checks["blockFreshness"] = HealthCheck{Status: StatusHealthy}
		}
	}

	// peers: a validator running alone is degraded but functional.
	if h.p2pSrv == nil || h.p2pSrv.PeerCount() == 0 {
		checks["peers"] = HealthCheck{Status: StatusDegraded, Detail: "no peers"}
	} else {
		checks["peers"] = HealthCheck{Status: StatusHealthy}
	}

	// mempool: always reachable in-process; report size.
	stats := h.chain.Pool().GetStats()
	checks["mempool"] = HealthCheck{Status: StatusHealthy, Detail: "pending=" + strconv.Itoa(stats.Pending)}

	// memory.
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	if mem.Alloc > h.memoryLimitBytes {
		checks["memory"] = HealthCheck{Status: StatusDegraded, Detail: "heap above limit"}
	} else {
		checks["memory"] = HealthCheck{Status: StatusHealthy}
	}

	// websocket.
	if h.wsHealthy == nil || h.wsHealthy() {
		checks["websocket"] = HealthCheck{Status: StatusHealthy}
	} else {
		checks["websocket"] = HealthCheck{Status: StatusUnhealthy, Detail: "listener down"}
	}

	// storage: a failing Stat marks the store unusable.
	if h.store == nil {
		checks["storage"] = HealthCheck{Status: StatusDegraded, Detail: "no persistent store"}
	} else if _, err := h.store.Stat(); err != nil {
		checks["storage"] = HealthCheck{Status: StatusUnhealthy, Detail: err.Error()}
	} else {
		checks["storage"] = HealthCheck{Status: StatusHealthy}
	}

	return &HealthReport{Status: overall(checks), Checks: checks}
}

func overall(checks map[string]HealthCheck) string {
	status := StatusHealthy
	for _, c := range checks {
		switch c.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// ServeHTTP implements the /health endpoint.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate()
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

