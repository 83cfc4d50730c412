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

// Package conf holds the typed node configuration. Every section has a
// Default* constructor and participates in Config.Validate, which reports
// every problem at once ahead of startup instead of failing on the first.
package conf

import (
	"os"

	"gopkg.in/yaml.v2"
)

// AuthMode 签名/认证执行模式
type AuthMode string

const (
	AuthModeOff     AuthMode = "off"
	AuthModeMonitor AuthMode = "monitor"
	AuthModeEnforce AuthMode = "enforce"
)

// Valid reports whether m is a recognized mode.
func (m AuthMode) Valid() bool {
	switch m {
	case AuthModeOff, AuthModeMonitor, AuthModeEnforce:
		return true
	}
	return false
}

// NodeConfig 节点基础配置
type NodeConfig struct {
	// DataDir 数据目录
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// NodePrivate 节点私钥 (hex)
	NodePrivate string `json:"node_key" yaml:"node_key"`

	// ChainID binds signatures and transaction admission.
	ChainID uint32 `json:"chain_id" yaml:"chain_id"`
}

// ChainConfig 链引擎配置
type ChainConfig struct {
	// Validators is the non-empty round-robin proposer set (node ids).
	Validators []string `json:"validators" yaml:"validators"`

	// BlockTimeMs is the proposer tick interval (>=100).
	BlockTimeMs uint64 `json:"block_time_ms" yaml:"block_time_ms"`

	// FinalityDepth marks blocks irreversible (>=1, default 3).
	FinalityDepth uint64 `json:"finality_depth" yaml:"finality_depth"`

	// MaxTxPerBlock caps transactions selected per proposal (>=1).
	MaxTxPerBlock int `json:"max_tx_per_block" yaml:"max_tx_per_block"`

	// MinGasPriceWei is the mempool fee floor.
	MinGasPriceWei uint64 `json:"min_gas_price_wei" yaml:"min_gas_price_wei"`

	// SignatureEnforcement: off | monitor | enforce for proposer
	// signatures on remote blocks.
	SignatureEnforcement AuthMode `json:"signature_enforcement" yaml:"signature_enforcement"`
}

// RPCConfig HTTP/WS RPC 配置
type RPCConfig struct {
	RPCPort uint16 `json:"rpc_port" yaml:"rpc_port"`
	WSPort  uint16 `json:"ws_port" yaml:"ws_port"`

	// IPFSPort reserves the content-addressed blockstore port used by
	// storage challenges.
	IPFSPort uint16 `json:"ipfs_port" yaml:"ipfs_port"`

	// AuthToken enables bearer-token auth when non-empty.
	AuthToken string `json:"rpc_auth_token" yaml:"rpc_auth_token"`

	// JWTSecret enables admin-namespace JWT auth when non-empty (hex).
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`

	// EnableAdminRPC opens the admin namespace.
	EnableAdminRPC bool `json:"enable_admin_rpc" yaml:"enable_admin_rpc"`
}

// P2PConfig wire 网络配置
type P2PConfig struct {
	Port uint16 `json:"p2p_port" yaml:"p2p_port"`

	// MaxPeers 全局连接上限 (default 50)
	MaxPeers int `json:"p2p_max_peers" yaml:"p2p_max_peers"`

	// MaxDiscoveredPerBatch caps FindNode responses (default 200).
	MaxDiscoveredPerBatch int `json:"p2p_max_discovered_per_batch" yaml:"p2p_max_discovered_per_batch"`

	// RateLimitWindowMs / RateLimitMaxRequests gate inbound frames.
	RateLimitWindowMs    uint64 `json:"p2p_rate_limit_window_ms" yaml:"p2p_rate_limit_window_ms"`
	RateLimitMaxRequests int    `json:"p2p_rate_limit_max_requests" yaml:"p2p_rate_limit_max_requests"`

	// RequireInboundAuth drops unauthenticated connections.
	RequireInboundAuth bool `json:"p2p_require_inbound_auth" yaml:"p2p_require_inbound_auth"`

	// InboundAuthMode: off | monitor | enforce.
	InboundAuthMode AuthMode `json:"p2p_inbound_auth_mode" yaml:"p2p_inbound_auth_mode"`

	// AuthMaxClockSkewMs is validated (>=1000) but not read by the p2p
	// server; the handshake carries no timestamp.
	AuthMaxClockSkewMs uint64 `json:"p2p_auth_max_clock_skew_ms" yaml:"p2p_auth_max_clock_skew_ms"`

	// StaticPeers 启动时直连的地址
	StaticPeers []string `json:"static_peers" yaml:"static_peers"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	// Backend 仅支持 leveldb
	Backend string `json:"backend" yaml:"backend"`

	// EnablePruning turns on the background pruner.
	EnablePruning bool `json:"enable_pruning" yaml:"enable_pruning"`

	// NonceRetentionDays bounds PoSe nonce-registry retention (>=1).
	NonceRetentionDays int `json:"nonce_retention_days" yaml:"nonce_retention_days"`
}

// PoseConfig PoSe 配置
type PoseConfig struct {
	// NonceRegistryPath is the append-only replay log location.
	NonceRegistryPath string `json:"pose_nonce_registry_path" yaml:"pose_nonce_registry_path"`

	// MaxChallengesPerEpoch is the per-node quota (>=1).
	MaxChallengesPerEpoch int `json:"pose_max_challenges_per_epoch" yaml:"pose_max_challenges_per_epoch"`

	// InboundAuthMode: off | monitor | enforce for _auth envelopes.
	InboundAuthMode AuthMode `json:"pose_inbound_auth_mode" yaml:"pose_inbound_auth_mode"`

	// ChallengerAllowlist lists authorized challenger ids.
	ChallengerAllowlist []string `json:"challenger_allowlist" yaml:"challenger_allowlist"`

	// LatencyWindowMs bounds receipt response time.
	LatencyWindowMs uint64 `json:"latency_window_ms" yaml:"latency_window_ms"`
}

// Config 汇总所有配置段
type Config struct {
	NodeCfg    NodeConfig    `json:"node" yaml:"node"`
	ChainCfg   ChainConfig   `json:"chain" yaml:"chain"`
	RPCCfg     RPCConfig     `json:"rpc" yaml:"rpc"`
	P2PCfg     P2PConfig     `json:"p2p" yaml:"p2p"`
	StorageCfg StorageConfig `json:"storage" yaml:"storage"`
	PoseCfg    PoseConfig    `json:"pose" yaml:"pose"`
	LoggerCfg  LoggerConfig  `json:"logger" yaml:"logger"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		NodeCfg: NodeConfig{
			DataDir: "./data",
			ChainID: 1337,
		},
		ChainCfg: ChainConfig{
			Validators:           nil,
			BlockTimeMs:          2000,
			FinalityDepth:        3,
			MaxTxPerBlock:        200,
			MinGasPriceWei:       1,
			SignatureEnforcement: AuthModeMonitor,
		},
		RPCCfg: RPCConfig{
			RPCPort:  8545,
			WSPort:   8546,
			IPFSPort: 5001,
		},
		P2PCfg: P2PConfig{
			Port:                  30403,
			MaxPeers:              50,
			MaxDiscoveredPerBatch: 200,
			RateLimitWindowMs:     60000,
			RateLimitMaxRequests:  240,
			InboundAuthMode:       AuthModeOff,
			AuthMaxClockSkewMs:    120000,
		},
		StorageCfg: StorageConfig{
			Backend:            "leveldb",
			NonceRetentionDays: 7,
		},
		PoseCfg: PoseConfig{
			NonceRegistryPath:     "pose/nonces.log",
			MaxChallengesPerEpoch: 60,
			InboundAuthMode:       AuthModeOff,
			LatencyWindowMs:       30000,
		},
		LoggerCfg: DefaultLoggerConfig(),
	}
}

// LoadFile merges a YAML config file over c.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, c)
}
