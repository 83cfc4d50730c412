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

package api

import (
	"time"

	"github.com/chainofclaw/COC-sub002/modules/rpc/jsonrpc"
)

// =============================================================================
// API Router
// =============================================================================

// Router manages the registration of JSON-RPC API namespaces. It acts as
// a gateway that routes requests to the appropriate handler.
type Router struct {
	api       *API
	broadcast TxBroadcaster
	dial      PeerDialer

	// Feature flags for namespace enablement
	enableEth    bool
	enableCoc    bool
	enableDebug  bool
	enableNet    bool
	enableWeb3   bool
	enableTxPool bool
	enableAdmin  bool
	enableTrace  bool
}

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	EnableEth    bool
	EnableCoc    bool
	EnableDebug  bool
	EnableNet    bool
	EnableWeb3   bool
	EnableTxPool bool
	EnableAdmin  bool
	EnableTrace  bool
}

// DefaultRouterConfig returns the default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		EnableEth:    true,
		EnableCoc:    true,
		EnableDebug:  true,
		EnableNet:    true,
		EnableWeb3:   true,
		EnableTxPool: true,
		EnableAdmin:  false, // opened via enableAdminRpc
		EnableTrace:  true,
	}
}

// NewRouter creates a new API router. broadcast and dial may be nil.
func NewRouter(api *API, config *RouterConfig, broadcast TxBroadcaster, dial PeerDialer) *Router {
	if config == nil {
		config = DefaultRouterConfig()
	}
	return &Router{
		api:          api,
		broadcast:    broadcast,
		dial:         dial,
		enableEth:    config.EnableEth,
		enableCoc:    config.EnableCoc,
		enableDebug:  config.EnableDebug,
		enableNet:    config.EnableNet,
		enableWeb3:   config.EnableWeb3,
		enableTxPool: config.EnableTxPool,
		enableAdmin:  config.EnableAdmin,
		enableTrace:  config.EnableTrace,
	}
}

// APIs returns all registered JSON-RPC APIs.
func (r *Router) APIs() []jsonrpc.API {
	var apis []jsonrpc.API

	if r.enableEth {
		apis = append(apis,
			jsonrpc.API{Namespace: "eth", Service: NewBlockChainAPI(r.api)},
			jsonrpc.API{Namespace: "eth", Service: NewTransactionAPI(r.api, r.broadcast)},
			jsonrpc.API{Namespace: "eth", Service: NewFilterService(r.api, 5*time.Minute)},
		)
	}
	if r.enableWeb3 {
		apis = append(apis, jsonrpc.API{Namespace: "web3", Service: &Web3API{}})
	}
	if r.enableNet {
		apis = append(apis, jsonrpc.API{Namespace: "net", Service: NewNetAPI(r.api)})
	}
	if r.enableDebug {
		apis = append(apis, jsonrpc.API{Namespace: "debug", Service: NewDebugAPI(r.api)})
	}
	if r.enableTrace {
		apis = append(apis, jsonrpc.API{Namespace: "trace", Service: NewTraceAPI(r.api)})
	}
	if r.enableTxPool {
		apis = append(apis, jsonrpc.API{Namespace: "txpool", Service: NewTxsPoolAPI(r.api)})
	}
	if r.enableAdmin {
		apis = append(apis, jsonrpc.API{Namespace: "admin", Service: NewAdminAPI(r.api, r.dial)})
	}
	if r.enableCoc {
		apis = append(apis, jsonrpc.API{Namespace: "coc", Service: NewCocAPI(r.api)})
	}
	return apis
}
