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

package main

import (
	"github.com/urfave/cli/v2"

	"github.com/chainofclaw/COC-sub002/conf"
)

var (
	// DefaultConfig 启动配置（命令行参数直接写入）
	DefaultConfig = conf.Default()

	cfgFile    string
	validators = cli.NewStringSlice()
)

var nodeFlags = []cli.Flag{
	&cli.StringFlag{
		Name:        "config",
		Usage:       "YAML 配置文件路径",
		Category:    "NODE",
		Destination: &cfgFile,
	},
	&cli.StringFlag{
		Name:        "data.dir",
		Usage:       "数据目录",
		Category:    "NODE",
		Value:       DefaultConfig.NodeCfg.DataDir,
		Destination: &DefaultConfig.NodeCfg.DataDir,
	},
	&cli.StringFlag{
		Name:        "node.key",
		Usage:       "节点私钥 (hex)",
		Category:    "NODE",
		Destination: &DefaultConfig.NodeCfg.NodePrivate,
	},
	&cli.UintFlag{
		Name:     "chain.id",
		Usage:    "链 ID",
		Category: "NODE",
		Value:    uint(DefaultConfig.NodeCfg.ChainID),
		Action: func(_ *cli.Context, v uint) error {
			DefaultConfig.NodeCfg.ChainID = uint32(v)
			return nil
		},
	},
}

var chainFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:        "chain.validators",
		Usage:       "验证人地址列表 (逗号分隔)",
		Category:    "CHAIN",
		Destination: validators,
	},
	&cli.Uint64Flag{
		Name:        "chain.block-time-ms",
		Usage:       "出块间隔 (毫秒)",
		Category:    "CHAIN",
		Value:       DefaultConfig.ChainCfg.BlockTimeMs,
		Destination: &DefaultConfig.ChainCfg.BlockTimeMs,
	},
	&cli.Uint64Flag{
		Name:        "chain.finality-depth",
		Usage:       "最终性深度",
		Category:    "CHAIN",
		Value:       DefaultConfig.ChainCfg.FinalityDepth,
		Destination: &DefaultConfig.ChainCfg.FinalityDepth,
	},
	&cli.IntFlag{
		Name:        "chain.max-tx-per-block",
		Usage:       "单块最大交易数",
		Category:    "CHAIN",
		Value:       DefaultConfig.ChainCfg.MaxTxPerBlock,
		Destination: &DefaultConfig.ChainCfg.MaxTxPerBlock,
	},
	&cli.Uint64Flag{
		Name:        "chain.min-gas-price",
		Usage:       "最低 gas 价格 (wei)",
		Category:    "CHAIN",
		Value:       DefaultConfig.ChainCfg.MinGasPriceWei,
		Destination: &DefaultConfig.ChainCfg.MinGasPriceWei,
	},
	&cli.StringFlag{
		Name:     "chain.signature-enforcement",
		Usage:    "出块签名校验模式 (off|monitor|enforce)",
		Category: "CHAIN",
		Value:    string(DefaultConfig.ChainCfg.SignatureEnforcement),
		Action: func(_ *cli.Context, v string) error {
			DefaultConfig.ChainCfg.SignatureEnforcement = conf.AuthMode(v)
			return nil
		},
	},
}

var rpcFlags = []cli.Flag{
	&cli.UintFlag{
		Name:     "rpc.port",
		Usage:    "HTTP-RPC 监听端口",
		Category: "HTTP-RPC",
		Value:    uint(DefaultConfig.RPCCfg.RPCPort),
		Action: func(_ *cli.Context, v uint) error {
			DefaultConfig.RPCCfg.RPCPort = uint16(v)
			return nil
		},
	},
	&cli.UintFlag{
		Name:     "ws.port",
		Usage:    "WebSocket 监听端口",
		Category: "HTTP-RPC",
		Value:    uint(DefaultConfig.RPCCfg.WSPort),
		Action: func(_ *cli.Context, v uint) error {
			DefaultConfig.RPCCfg.WSPort = uint16(v)
			return nil
		},
	},
	&cli.StringFlag{
		Name:        "rpc.auth-token",
		Usage:       "RPC bearer token (留空关闭认证)",
		Category:    "HTTP-RPC",
		Destination: &DefaultConfig.RPCCfg.AuthToken,
	},
	&cli.BoolFlag{
		Name:        "rpc.admin",
		Usage:       "开放 admin 命名空间",
		Category:    "HTTP-RPC",
		Value:       DefaultConfig.RPCCfg.EnableAdminRPC,
		Destination: &DefaultConfig.RPCCfg.EnableAdminRPC,
	},
}

var p2pFlags = []cli.Flag{
	&cli.UintFlag{
		Name:     "p2p.port",
		Usage:    "P2P 监听端口",
		Category: "P2P NETWORK",
		Value:    uint(DefaultConfig.P2PCfg.Port),
		Action: func(_ *cli.Context, v uint) error {
			DefaultConfig.P2PCfg.Port = uint16(v)
			return nil
		},
	},
	&cli.IntFlag{
		Name:        "p2p.max-peers",
		Usage:       "最大连接数",
		Category:    "P2P NETWORK",
		Value:       DefaultConfig.P2PCfg.MaxPeers,
		Destination: &DefaultConfig.P2PCfg.MaxPeers,
	},
	&cli.StringSliceFlag{
		Name:     "p2p.static-peers",
		Usage:    "静态节点地址",
		Category: "P2P NETWORK",
	},
	&cli.StringFlag{
		Name:     "p2p.inbound-auth",
		Usage:    "入站握手认证模式 (off|monitor|enforce)",
		Category: "P2P NETWORK",
		Value:    string(DefaultConfig.P2PCfg.InboundAuthMode),
		Action: func(_ *cli.Context, v string) error {
			DefaultConfig.P2PCfg.InboundAuthMode = conf.AuthMode(v)
			return nil
		},
	},
}

var poseFlags = []cli.Flag{
	&cli.IntFlag{
		Name:        "pose.max-challenges-per-epoch",
		Usage:       "单节点每 epoch 挑战配额",
		Category:    "POSE",
		Value:       DefaultConfig.PoseCfg.MaxChallengesPerEpoch,
		Destination: &DefaultConfig.PoseCfg.MaxChallengesPerEpoch,
	},
	&cli.StringFlag{
		Name:        "pose.nonce-registry",
		Usage:       "回放注册表文件路径 (相对 data.dir)",
		Category:    "POSE",
		Value:       DefaultConfig.PoseCfg.NonceRegistryPath,
		Destination: &DefaultConfig.PoseCfg.NonceRegistryPath,
	},
	&cli.StringFlag{
		Name:     "pose.inbound-auth",
		Usage:    "PoSe HTTP 认证模式 (off|monitor|enforce)",
		Category: "POSE",
		Value:    string(DefaultConfig.PoseCfg.InboundAuthMode),
		Action: func(_ *cli.Context, v string) error {
			DefaultConfig.PoseCfg.InboundAuthMode = conf.AuthMode(v)
			return nil
		},
	},
}

var storageFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:        "storage.pruning",
		Usage:       "启用后台清理",
		Category:    "STORAGE",
		Value:       DefaultConfig.StorageCfg.EnablePruning,
		Destination: &DefaultConfig.StorageCfg.EnablePruning,
	},
	&cli.IntFlag{
		Name:        "storage.nonce-retention-days",
		Usage:       "nonce 记录保留天数",
		Category:    "STORAGE",
		Value:       DefaultConfig.StorageCfg.NonceRetentionDays,
		Destination: &DefaultConfig.StorageCfg.NonceRetentionDays,
	},
}

var logFlags = []cli.Flag{
	&cli.StringFlag{
		Name:        "log.level",
		Usage:       "日志级别: trace, debug, info, warn, error",
		Category:    "LOG",
		Value:       DefaultConfig.LoggerCfg.Level,
		Destination: &DefaultConfig.LoggerCfg.Level,
	},
	&cli.StringFlag{
		Name:        "log.file",
		Usage:       "日志文件名 (留空只输出到控制台)",
		Category:    "LOG",
		Destination: &DefaultConfig.LoggerCfg.LogFile,
	},
}

// AllFlags 汇总全部命令行参数
func AllFlags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, nodeFlags...)
	flags = append(flags, chainFlags...)
	flags = append(flags, rpcFlags...)
	flags = append(flags, p2pFlags...)
	flags = append(flags, poseFlags...)
	flags = append(flags, storageFlags...)
	flags = append(flags, logFlags...)
	return flags
}
