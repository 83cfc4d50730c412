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

package conf

import (
	"fmt"
	"strings"
)

// Issue is a single configuration problem found ahead of startup.
type Issue struct {
	// Field is the dotted option path, e.g. "p2p.rate_limit_window_ms".
	Field string
	// Msg describes the violation.
	Msg string
}

func (i Issue) String() string { return i.Field + ": " + i.Msg }

// ValidationError aggregates every issue found in one pass.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Validate enumerates every configuration problem. A nil return means the
// node may start.
func (c *Config) Validate() error {
	var issues []Issue
	add := func(field, format string, args ...interface{}) {
		issues = append(issues, Issue{Field: field, Msg: fmt.Sprintf(format, args...)})
	}

	if c.NodeCfg.ChainID == 0 {
		add("node.chain_id", "must be a positive integer")
	}
	if len(c.ChainCfg.Validators) == 0 {
		add("chain.validators", "must list at least one validator node id")
	}
	for i, v := range c.ChainCfg.Validators {
		if v == "" {
			add("chain.validators", "entry %d is empty", i)
		}
	}
	if c.ChainCfg.BlockTimeMs < 100 {
		add("chain.block_time_ms", "must be >= 100, got %d", c.ChainCfg.BlockTimeMs)
	}
	if c.ChainCfg.FinalityDepth < 1 {
		add("chain.finality_depth", "must be >= 1, got %d", c.ChainCfg.FinalityDepth)
	}
	if c.ChainCfg.MaxTxPerBlock < 1 {
		add("chain.max_tx_per_block", "must be >= 1, got %d", c.ChainCfg.MaxTxPerBlock)
	}
	if !c.ChainCfg.SignatureEnforcement.Valid() {
		add("chain.signature_enforcement", "must be off|monitor|enforce, got %q", c.ChainCfg.SignatureEnforcement)
	}

	checkPort := func(field string, port uint16) {
		if port == 0 {
			add(field, "must be in 1..65535")
		}
	}
	checkPort("rpc.rpc_port", c.RPCCfg.RPCPort)
	checkPort("rpc.ws_port", c.RPCCfg.WSPort)
	checkPort("rpc.ipfs_port", c.RPCCfg.IPFSPort)
	checkPort("p2p.port", c.P2PCfg.Port)

	if c.P2PCfg.MaxPeers <= 0 {
		add("p2p.max_peers", "must be positive, got %d", c.P2PCfg.MaxPeers)
	}
	if c.P2PCfg.MaxDiscoveredPerBatch <= 0 {
		add("p2p.max_discovered_per_batch", "must be positive, got %d", c.P2PCfg.MaxDiscoveredPerBatch)
	}
	if c.P2PCfg.RateLimitWindowMs < 100 {
		add("p2p.rate_limit_window_ms", "must be >= 100, got %d", c.P2PCfg.RateLimitWindowMs)
	}
	if c.P2PCfg.RateLimitMaxRequests <= 0 {
		add("p2p.rate_limit_max_requests", "must be positive, got %d", c.P2PCfg.RateLimitMaxRequests)
	}
	if !c.P2PCfg.InboundAuthMode.Valid() {
		add("p2p.inbound_auth_mode", "must be off|monitor|enforce, got %q", c.P2PCfg.InboundAuthMode)
	}
	if c.P2PCfg.AuthMaxClockSkewMs < 1000 {
		add("p2p.auth_max_clock_skew_ms", "must be >= 1000, got %d", c.P2PCfg.AuthMaxClockSkewMs)
	}

	if c.StorageCfg.Backend != "leveldb" {
		add("storage.backend", "only leveldb is supported, got %q", c.StorageCfg.Backend)
	}
	if c.StorageCfg.EnablePruning && c.StorageCfg.NonceRetentionDays < 1 {
		add("storage.nonce_retention_days", "must be >= 1 when pruning, got %d", c.StorageCfg.NonceRetentionDays)
	}

	if c.PoseCfg.MaxChallengesPerEpoch < 1 {
		add("pose.max_challenges_per_epoch", "must be >= 1, got %d", c.PoseCfg.MaxChallengesPerEpoch)
	}
	if !c.PoseCfg.InboundAuthMode.Valid() {
		add("pose.inbound_auth_mode", "must be off|monitor|enforce, got %q", c.PoseCfg.InboundAuthMode)
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
