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

// Package node assembles the process: storage, execution engine, mempool,
// chain engine, peer fabric, RPC/WebSocket servers, the PoSe pipeline and
// the health surface, with ordered graceful shutdown.
package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/chainofclaw/COC-sub002/common/block"
	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/conf"
	"github.com/chainofclaw/COC-sub002/internal"
	"github.com/chainofclaw/COC-sub002/internal/api"
	"github.com/chainofclaw/COC-sub002/internal/evm"
	"github.com/chainofclaw/COC-sub002/internal/p2p"
	"github.com/chainofclaw/COC-sub002/internal/pose"
	"github.com/chainofclaw/COC-sub002/internal/txspool"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/modules/kv"
	"github.com/chainofclaw/COC-sub002/modules/rpc/jsonrpc"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
	"github.com/chainofclaw/COC-sub002/utils"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitBadConfig  = 1
	ExitCorruption = 2
	ExitListenFail = 3
)

// ExitError carries the process exit code alongside the cause.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit %d: %v", e.Code, e.Err) }
func (e *ExitError) Unwrap() error { return e.Err }

// Node is the assembled process.
type Node struct {
	cfg    *conf.Config
	logger log.Logger

	nodeID   string
	lock     *flock.Flock
	store    *kv.LevelStore
	chain    *internal.BlockChain
	pool     *txspool.TxsPool
	engine   *evm.NativeEngine
	p2pSrv   *p2p.Server
	rpcSrv   *jsonrpc.Server
	registry *pose.ReplayRegistry
	poseEng  *pose.Engine
	poseHTTP *pose.HTTPHandler
	pruner   *Pruner
	health   *HealthServer

	httpServer *http.Server
	wsServer   *http.Server

	cancel context.CancelFunc
}

// New validates cfg and assembles the node. Validation failure maps to
// exit code 1, storage corruption to 2.
func New(cfg *conf.Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ExitError{Code: ExitBadConfig, Err: err}
	}

	n := &Node{cfg: cfg, logger: log.New("module", "node")}

	// One process per datadir.
	n.lock = flock.New(filepath.Join(cfg.NodeCfg.DataDir, "LOCK"))
	locked, err := n.lock.TryLock()
	if err == nil && !locked {
		err = errors.New("datadir already in use")
	}
	if err != nil {
		return nil, &ExitError{Code: ExitBadConfig, Err: errors.Wrap(err, "datadir lock")}
	}

	// Storage. The engine must refuse to start against a corrupted store.
	store, err := kv.Open(filepath.Join(cfg.NodeCfg.DataDir, "chaindata"))
	if errors.Is(err, errors.ErrCorrupted) {
		store, err = kv.Repair(filepath.Join(cfg.NodeCfg.DataDir, "chaindata"))
		if err != nil {
			return nil, &ExitError{Code: ExitCorruption, Err: err}
		}
	} else if err != nil {
		return nil, &ExitError{Code: ExitCorruption, Err: err}
	}
	n.store = store

	// Node key.
	key, err := crypto.PrivateKeyFromBytes(types.FromHex(cfg.NodeCfg.NodePrivate))
	if err != nil {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, &ExitError{Code: ExitBadConfig, Err: err}
		}
		n.logger.Warn("No node key configured, generated ephemeral identity")
	}
	nodeAddr := crypto.PubkeyToAddress(key.PubKey())
	n.nodeID = nodeAddr.Hex()

	// Execution engine + mempool + chain engine.
	chainID := uint64(cfg.NodeCfg.ChainID)
	n.engine = evm.NewNativeEngine(chainID)
	minGas := uint256.NewInt(cfg.ChainCfg.MinGasPriceWei)
	n.pool = txspool.NewTxsPool(chainID, minGas)
	n.chain = internal.NewBlockChain(internal.ChainConfig{
		ChainID:       chainID,
		NodeID:        nodeAddr.Hex(),
		Validators:    cfg.ChainCfg.Validators,
		FinalityDepth: cfg.ChainCfg.FinalityDepth,
		MaxTxPerBlock: cfg.ChainCfg.MaxTxPerBlock,
		MinGasPrice:   minGas,
		SignatureMode: cfg.ChainCfg.SignatureEnforcement,
		Signer:        key,
		Store:         store,
	}, n.engine, n.pool)

	// PoSe pipeline.
	n.registry, err = pose.OpenReplayRegistry(
		filepath.Join(cfg.NodeCfg.DataDir, cfg.PoseCfg.NonceRegistryPath),
		1<<20,
		uint64(cfg.StorageCfg.NonceRetentionDays)*24*3600*1000,
		nil,
	)
	if err != nil {
		return nil, &ExitError{Code: ExitCorruption, Err: err}
	}
	n.poseEng = pose.NewEngine(pose.EngineConfig{
		MaxChallengesPerEpoch: cfg.PoseCfg.MaxChallengesPerEpoch,
		LatencyWindowMs:       cfg.PoseCfg.LatencyWindowMs,
	}, nil, key, n.registry)
	inboundAuth := pose.NewInboundAuth(cfg.PoseCfg.InboundAuthMode, cfg.PoseCfg.ChallengerAllowlist, nil, n.registry, nil)
	n.poseHTTP = pose.NewHTTPHandler(n.poseEng, inboundAuth)

	// Peer fabric. Gossip relays into the chain engine; the relay hook
	// mirrors wire gossip onto the HTTP side for cross-protocol peers.
	n.p2pSrv = p2p.NewServer(p2p.ServerConfig{
		ChainID:            chainID,
		NodeID:             nodeAddr.Hex(),
		ListenAddr:         fmt.Sprintf(":%d", cfg.P2PCfg.Port),
		MaxConnections:     cfg.P2PCfg.MaxPeers,
		MaxDiscoveredBatch: cfg.P2PCfg.MaxDiscoveredPerBatch,
		InboundAuthMode:    cfg.P2PCfg.InboundAuthMode,
		Signer:             key,
		RateLimitWindow:    time.Duration(cfg.P2PCfg.RateLimitWindowMs) * time.Millisecond,
		RateLimitMaxFrames: cfg.P2PCfg.RateLimitMaxRequests,
	}, &chainBackend{chain: n.chain}, func(kind string, payload []byte) {
		log.Trace("Cross-protocol relay", "kind", kind, "bytes", len(payload))
	})

	if cfg.StorageCfg.EnablePruning {
		n.pruner = NewPruner(store, n.registry, cfg.StorageCfg.NonceRetentionDays)
	}

	return n, nil
}

// chainBackend adapts the chain engine onto the p2p backend surface.
type chainBackend struct {
	chain *internal.BlockChain
}

func (b *chainBackend) Height() uint64 { return b.chain.Height() }

func (b *chainBackend) HandleRemoteBlock(blk *block.Block) error {
	return b.chain.ApplyBlock(blk, false)
}

func (b *chainBackend) HandleRemoteTx(rawTx string) error {
	_, err := b.chain.AddTransaction(rawTx)
	return err
}

func (b *chainBackend) MakeSnapshot() []*block.Block { return b.chain.MakeSnapshot() }

func (b *chainBackend) MaybeAdoptSnapshot(blocks []*block.Block) (bool, error) {
	return b.chain.MaybeAdoptSnapshot(blocks)
}

func (b *chainBackend) GetBlockByNumber(number uint64) *block.Block {
	return b.chain.GetBlockByNumber(number)
}

// Start brings every listener up and runs until ctx cancellation or
// SIGTERM handling by the caller. Listen failures map to exit code 3.
func (n *Node) Start(ctx context.Context) error {
	ctx, n.cancel = context.WithCancel(ctx)

	if err := n.p2pSrv.Start(); err != nil {
		return &ExitError{Code: ExitListenFail, Err: err}
	}
	for _, addr := range n.cfg.P2PCfg.StaticPeers {
		if err := n.p2pSrv.Dial(addr); err != nil {
			n.logger.Warn("Static peer dial failed", "addr", addr, "err", err)
		}
	}

	// RPC over HTTP: JSON-RPC at /, PoSe endpoints, health, metrics.
	var jwtSecret []byte
	if n.cfg.RPCCfg.JWTSecret != "" {
		jwtSecret = types.FromHex(n.cfg.RPCCfg.JWTSecret)
	}
	n.rpcSrv = jsonrpc.NewServer(jsonrpc.ServerConfig{
		AuthToken:    n.cfg.RPCCfg.AuthToken,
		JWTSecret:    jwtSecret,
		AdminEnabled: n.cfg.RPCCfg.EnableAdminRPC,
	})
	backend := api.NewAPI(n.chain, n.p2pSrv, n.poseEng)
	routerCfg := api.DefaultRouterConfig()
	routerCfg.EnableAdmin = n.cfg.RPCCfg.EnableAdminRPC
	router := api.NewRouter(backend, routerCfg, n.p2pSrv.BroadcastTx, n.p2pSrv.Dial)
	n.rpcSrv.RegisterAPIs(router.APIs())

	n.health = NewHealthServer(n.chain, n.p2pSrv, n.store,
		2*time.Duration(n.cfg.ChainCfg.BlockTimeMs)*time.Millisecond+30*time.Second,
		func() bool { return n.wsServer != nil })

	mux := http.NewServeMux()
	mux.Handle("/", n.rpcSrv.Handler())
	n.poseHTTP.Register(mux)
	mux.Handle("/health", n.health)
	mux.Handle("/metrics", promhttp.Handler())

	httpLn, err := net.Listen("tcp", fmt.Sprintf(":%d", n.cfg.RPCCfg.RPCPort))
	if err != nil {
		return &ExitError{Code: ExitListenFail, Err: err}
	}
	n.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := n.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			n.logger.Error("HTTP server stopped", "err", err)
		}
	}()
	n.logger.Info("HTTP RPC listening", "addr", httpLn.Addr().String())

	// WebSocket listener.
	hub := api.NewSubscriptionHub(backend)
	wsSrv := jsonrpc.NewWSServer(n.rpcSrv, hub)
	wsLn, err := net.Listen("tcp", fmt.Sprintf(":%d", n.cfg.RPCCfg.WSPort))
	if err != nil {
		return &ExitError{Code: ExitListenFail, Err: err}
	}
	n.wsServer = &http.Server{Handler: wsSrv, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := n.wsServer.Serve(wsLn); err != nil && err != http.ErrServerClosed {
			n.logger.Error("WebSocket server stopped", "err", err)
		}
	}()
	n.logger.Info("WebSocket listening", "addr", wsLn.Addr().String())

	// Proposer loop: propose whenever the round-robin slot is ours.
	utils.RunEvery(ctx, time.Duration(n.cfg.ChainCfg.BlockTimeMs)*time.Millisecond, func() {
		next := n.chain.Height() + 1
		if n.chain.ExpectedProposer(next) != n.nodeID {
			return
		}
		blk, err := n.chain.ProposeNextBlock()
		if err != nil {
			n.logger.Error("Proposal failed", "height", next, "err", err)
			return
		}
		n.p2pSrv.BroadcastBlock(blk)
	})

	if n.pruner != nil {
		n.pruner.Start(ctx)
	}

	n.logger.Info("Node started",
		"chainId", n.cfg.NodeCfg.ChainID,
		"nodeId", n.nodeID,
		"rpcPort", n.cfg.RPCCfg.RPCPort,
		"wsPort", n.cfg.RPCCfg.WSPort,
		"p2pPort", n.cfg.P2PCfg.Port,
	)
	return nil
}

// Stop shuts down gracefully: stop listeners, drain in-flight work, close
// the store last.
func (n *Node) Stop() error {
	n.logger.Info("Shutting down")
	if n.cancel != nil {
		n.cancel()
	}

	var group errgroup.Group
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if n.httpServer != nil {
		group.Go(func() error { return n.httpServer.Shutdown(shutdownCtx) })
	}
	if n.wsServer != nil {
		group.Go(func() error { return n.wsServer.Shutdown(shutdownCtx) })
	}
	if err := group.Wait(); err != nil {
		n.logger.Warn("Listener shutdown incomplete", "err", err)
	}
	if n.p2pSrv != nil {
		n.p2pSrv.Stop()
	}
	if n.rpcSrv != nil {
		n.rpcSrv.Stop()
	}
	if n.poseHTTP != nil {
		n.poseHTTP.Stop()
	}
	if n.registry != nil {
		if err := n.registry.Close(); err != nil {
			n.logger.Warn("Registry close failed", "err", err)
		}
	}
	if n.store != nil {
		if err := n.store.Close(); err != nil {
			n.logger.Warn("Store close failed", "err", err)
		}
	}
	if n.lock != nil {
		_ = n.lock.Unlock()
	}
	n.logger.Info("Shutdown complete")
	return nil
}
