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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/chainofclaw/COC-sub002/internal/node"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// appRun 启动节点并等待退出信号
func appRun(ctx *cli.Context) error {
	cfg := DefaultConfig
	if cfgFile != "" {
		if err := cfg.LoadFile(cfgFile); err != nil {
			fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
			os.Exit(node.ExitBadConfig)
		}
	}
	if vals := validators.Value(); len(vals) > 0 {
		cfg.ChainCfg.Validators = vals
	}
	if peers := ctx.StringSlice("p2p.static-peers"); len(peers) > 0 {
		cfg.P2PCfg.StaticPeers = peers
	}

	log.Init(cfg.NodeCfg, cfg.LoggerCfg)

	n, err := node.New(cfg)
	if err != nil {
		return exitWith(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := n.Start(runCtx); err != nil {
		_ = n.Stop()
		return exitWith(err)
	}

	// SIGTERM/SIGINT → graceful shutdown: stop listeners, drain
	// in-flight work, close the store.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Info("Signal received, shutting down", "signal", sig.String())

	if err := n.Stop(); err != nil {
		return err
	}
	return nil
}

// exitWith maps typed startup failures onto process exit codes.
func exitWith(err error) error {
	var exitErr *node.ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", exitErr.Err)
		os.Exit(exitErr.Code)
	}
	return err
}
