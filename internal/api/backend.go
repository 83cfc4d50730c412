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

// Package api exposes the node over JSON-RPC: the standard eth/net/web3
// namespaces, txpool and debug introspection, the admin surface and the
// coc extension namespace. RPC reads always go through the chain engine so
// they observe consistent post-apply state.
package api

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/internal"
	"github.com/chainofclaw/COC-sub002/internal/p2p"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// PoseStatus is the PoSe surface the coc namespace reports.
type PoseStatus interface {
	CurrentEpoch() uint64
}

// API is the shared backend of every namespace service.
type API struct {
	chain  *internal.BlockChain
	p2pSrv *p2p.Server // may be nil in tests
	pose   PoseStatus  // may be nil
	logger log.Logger

	// accounts is the unlocked developer account map, lazily populated.
	accountsMu sync.Mutex
	accounts   map[types.Address]*btcec.PrivateKey
}

// NewAPI builds the backend facade.
func NewAPI(chain *internal.BlockChain, p2pSrv *p2p.Server, pose PoseStatus) *API {
	return &API{
		chain:  chain,
		p2pSrv: p2pSrv,
		pose:   pose,
		logger: log.New("module", "api"),
	}
}

// Chain exposes the chain engine.
func (a *API) Chain() *internal.BlockChain { return a.chain }

// AddAccount unlocks a developer account for eth_sign/eth_sendTransaction.
func (a *API) AddAccount(key *btcec.PrivateKey) types.Address {
	addr := crypto.PubkeyToAddress(key.PubKey())
	a.accountsMu.Lock()
	defer a.accountsMu.Unlock()
	if a.accounts == nil {
		a.accounts = make(map[types.Address]*btcec.PrivateKey)
	}
	a.accounts[addr] = key
	return addr
}

// Accounts lists unlocked account addresses.
func (a *API) Accounts() []types.Address {
	a.accountsMu.Lock()
	defer a.accountsMu.Unlock()
	out := make([]types.Address, 0, len(a.accounts))
	for addr := range a.accounts {
		out = append(out, addr)
	}
	return out
}

func (a *API) accountKey(addr types.Address) *btcec.PrivateKey {
	a.accountsMu.Lock()
	defer a.accountsMu.Unlock()
	return a.accounts[addr]
}

// PeerCount reports the live P2P session count.
func (a *API) PeerCount() int {
	if a.p2pSrv == nil {
		return 0
	}
	return a.p2pSrv.PeerCount()
}

// =============================================================================
// Hex quantity helpers (0x-prefixed, minimal-length encoding)
// =============================================================================

// EncodeUint64 encodes v as a hex quantity.
func EncodeUint64(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

// DecodeUint64 parses a hex quantity.
func DecodeUint64(s string) (uint64, error) {
	cleaned := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if cleaned == "" {
		return 0, errors.New("empty hex quantity")
	}
	return strconv.ParseUint(cleaned, 16, 64)
}

// EncodeBig encodes a 256-bit value as a hex quantity.
func EncodeBig(v *uint256.Int) string {
	if v == nil {
		return "0x0"
	}
	return v.Hex()
}

// DecodeBig parses a hex or decimal quantity into a 256-bit value.
func DecodeBig(s string) (*uint256.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return uint256.FromHex(strings.ToLower(s))
	}
	return uint256.FromDecimal(s)
}

// BlockNumberArg resolves a block-tag argument: "latest"/"pending"/
// "safe"/"finalized"/"earliest" or a hex quantity.
func (a *API) BlockNumberArg(tag string) (uint64, error) {
	switch tag {
	case "", "latest", "pending", "safe":
		return a.chain.Height(), nil
	case "finalized":
		return a.chain.FinalizedHeight(), nil
	case "earliest":
		return 1, nil
	default:
		n, err := DecodeUint64(tag)
		if err != nil {
			return 0, fmt.Errorf("invalid block number %q", tag)
		}
		return n, nil
	}
}
