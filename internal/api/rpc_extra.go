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
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/modules/rawdb"
	"github.com/chainofclaw/COC-sub002/params"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// =============================================================================
// net namespace
// =============================================================================

// NetAPI implements net_*.
type NetAPI struct {
	api *API
}

// NewNetAPI creates the net service.
func NewNetAPI(api *API) *NetAPI { return &NetAPI{api: api} }

// Version returns the network id as a decimal string.
func (s *NetAPI) Version() string {
	return strconv.FormatUint(s.api.chain.ChainID(), 10)
}

// Listening reports whether the P2P listener is up.
func (s *NetAPI) Listening() bool {
	return s.api.p2pSrv != nil
}

// PeerCount returns the live session count.
func (s *NetAPI) PeerCount() string {
	return EncodeUint64(uint64(s.api.PeerCount()))
}

// =============================================================================
// web3 namespace
// =============================================================================

// Web3API implements web3_*.
type Web3API struct{}

// ClientVersion reports the client identifier.
func (s *Web3API) ClientVersion() string {
	return fmt.Sprintf("%s/v%s", params.ClientIdentifier, params.Version)
}

// Sha3 hashes arbitrary hex input with Keccak-256.
func (s *Web3API) Sha3(dataHex string) string {
	return crypto.Keccak256Hash(types.FromHex(dataHex)).Hex()
}

// =============================================================================
// txpool namespace
// =============================================================================

// TxsPoolAPI implements txpool_*.
type TxsPoolAPI struct {
	api *API
}

// NewTxsPoolAPI creates the txpool service.
func NewTxsPoolAPI(api *API) *TxsPoolAPI { return &TxsPoolAPI{api: api} }

// Status reports pending/queued counts.
func (s *TxsPoolAPI) Status() map[string]string {
	stats := s.api.chain.Pool().GetStats()
	return map[string]string{
		"pending": EncodeUint64(uint64(stats.Pending)),
		"queued":  "0x0",
	}
}

// Content groups pending transactions by sender and nonce.
func (s *TxsPoolAPI) Content() map[string]map[string]map[string]*RPCTransaction {
	pending := make(map[string]map[string]*RPCTransaction)
	for addr, entries := range s.api.chain.Pool().Content() {
		byNonce := make(map[string]*RPCTransaction, len(entries))
		for _, e := range entries {
			byNonce[strconv.FormatUint(e.Nonce, 10)] = newRPCTransaction(e.Tx, nil, 0)
		}
		pending[addr.Hex()] = byNonce
	}
	return map[string]map[string]map[string]*RPCTransaction{
		"pending": pending,
		"queued":  {},
	}
}

// =============================================================================
// debug / trace namespaces
// =============================================================================

// DebugAPI implements debug_*.
type DebugAPI struct {
	api *API
}

// NewDebugAPI creates the debug service.
func NewDebugAPI(api *API) *DebugAPI { return &DebugAPI{api: api} }

// TxTrace is the flat trace record for one transaction.
type TxTrace struct {
	TxHash  types.Hash `json:"txHash"`
	From    string     `json:"from"`
	To      *string    `json:"to"`
	Value   string     `json:"value"`
	Gas     string     `json:"gas"`
	GasUsed string     `json:"gasUsed"`
	Status  string     `json:"status"`
	Input   string     `json:"input"`
	Logs    int        `json:"logs"`
}

func (s *DebugAPI) traceOf(hash types.Hash) (*TxTrace, error) {
	rec := s.api.chain.Engine().GetReceipt(hash)
	tx := s.api.chain.Engine().GetTransaction(hash)
	if rec == nil || tx == nil {
		return nil, errors.Errorf("transaction %s not found", hash.Hex())
	}
	trace := &TxTrace{
		TxHash:  hash,
		Value:   EncodeBig(tx.Value()),
		Gas:     EncodeUint64(tx.GasLimit()),
		GasUsed: EncodeUint64(rec.GasUsed),
		Status:  EncodeUint64(rec.Status),
		Input:   "0x" + hex.EncodeToString(tx.Data()),
		Logs:    len(rec.Logs),
	}
	if from, err := tx.Sender(); err == nil {
		trace.From = from.Hex()
	}
	if to := tx.To(); to != nil {
		str := to.Hex()
		trace.To = &str
	}
	return trace, nil
}

// TraceTransaction implements debug_traceTransaction.
func (s *DebugAPI) TraceTransaction(hash string) (*TxTrace, error) {
	if !types.IsHexHash(hash) {
		return nil, errors.Errorf("invalid transaction hash %q", hash)
	}
	return s.traceOf(types.HexToHash(hash))
}

// TraceBlockByNumber implements debug_traceBlockByNumber.
func (s *DebugAPI) TraceBlockByNumber(tag string) ([]*TxTrace, error) {
	number, err := s.api.BlockNumberArg(tag)
	if err != nil {
		return nil, err
	}
	receipts := s.api.chain.GetReceipts(number)
	out := make([]*TxTrace, 0, len(receipts))
	for _, rec := range receipts {
		trace, err := s.traceOf(rec.TxHash)
		if err != nil {
			return nil, err
		}
		out = append(out, trace)
	}
	return out, nil
}

// TraceAPI implements trace_* (parity-style alias of the flat trace).
type TraceAPI struct {
	debug *DebugAPI
}

// NewTraceAPI creates the trace service.
func NewTraceAPI(api *API) *TraceAPI { return &TraceAPI{debug: NewDebugAPI(api)} }

// Transaction implements trace_transaction.
func (s *TraceAPI) Transaction(hash string) ([]*TxTrace, error) {
	t, err := s.debug.TraceTransaction(hash)
	if err != nil {
		return nil, err
	}
	return []*TxTrace{t}, nil
}

// =============================================================================
// admin namespace
// =============================================================================

// PeerDialer dials a new static peer.
type PeerDialer func(addr string) error

// AdminAPI implements admin_* (gated behind enableAdminRpc).
type AdminAPI struct {
	api  *API
	dial PeerDialer
}

// NewAdminAPI creates the admin service. dial may be nil.
func NewAdminAPI(api *API, dial PeerDialer) *AdminAPI {
	return &AdminAPI{api: api, dial: dial}
}

// NodeInfoResult is admin_nodeInfo's response.
type NodeInfoResult struct {
	Name       string   `json:"name"`
	ChainID    uint64   `json:"chainId"`
	Height     uint64   `json:"height"`
	Peers      int      `json:"peers"`
	Validators []string `json:"validators"`
}

// NodeInfo reports the node identity and chain state.
func (s *AdminAPI) NodeInfo() *NodeInfoResult {
	return &NodeInfoResult{
		Name:       fmt.Sprintf("%s/v%s", params.ClientIdentifier, params.Version),
		ChainID:    s.api.chain.ChainID(),
		Height:     s.api.chain.Height(),
		Peers:      s.api.PeerCount(),
		Validators: s.api.chain.Validators(),
	}
}

// AddPeer dials a static peer address.
func (s *AdminAPI) AddPeer(addr string) (bool, error) {
	if s.dial == nil {
		return false, errors.New("p2p not running")
	}
	if err := s.dial(addr); err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// coc namespace
// =============================================================================

// CocAPI implements the coc_* extension namespace.
type CocAPI struct {
	api *API
}

// NewCocAPI creates the coc service.
func NewCocAPI(api *API) *CocAPI { return &CocAPI{api: api} }

// CocNodeInfo is coc_nodeInfo's response.
type CocNodeInfo struct {
	NodeID    string `json:"nodeId"`
	ChainID   uint64 `json:"chainId"`
	Height    uint64 `json:"height"`
	Finalized uint64 `json:"finalized"`
	PeerCount int    `json:"peerCount"`
	PoseEpoch uint64 `json:"poseEpoch"`
}

// NodeInfo reports chain + pose state.
func (s *CocAPI) NodeInfo() *CocNodeInfo {
	info := &CocNodeInfo{
		ChainID:   s.api.chain.ChainID(),
		Height:    s.api.chain.Height(),
		Finalized: s.api.chain.FinalizedHeight(),
		PeerCount: s.api.PeerCount(),
	}
	if len(s.api.chain.Validators()) > 0 {
		info.NodeID = s.api.chain.ExpectedProposer(s.api.chain.Height() + 1)
	}
	if s.api.pose != nil {
		info.PoseEpoch = s.api.pose.CurrentEpoch()
	}
	return info
}

// ValidatorsResult is coc_validators' response.
type ValidatorsResult struct {
	Validators      []string `json:"validators"`
	CurrentProposer string   `json:"currentProposer"`
}

// Validators reports the round-robin set and the next proposer.
func (s *CocAPI) Validators() *ValidatorsResult {
	return &ValidatorsResult{
		Validators:      s.api.chain.Validators(),
		CurrentProposer: s.api.chain.ExpectedProposer(s.api.chain.Height() + 1),
	}
}

// GetTransactionsByAddress returns tx hashes touching addr from the
// persistent address index.
func (s *CocAPI) GetTransactionsByAddress(addr string, reverse bool, limit int) ([]types.Hash, error) {
	if !types.IsHexAddress(addr) {
		return nil, errors.Errorf("invalid address %q", addr)
	}
	store := s.api.chain.Store()
	if store == nil {
		return []types.Hash{}, nil
	}
	return rawdb.ReadAddressTxs(store, types.HexToAddress(addr), reverse, limit)
}

// PrunerStats returns the background pruner metadata.
func (s *CocAPI) PrunerStats() (*rawdb.PrunerStats, error) {
	store := s.api.chain.Store()
	if store == nil {
		return &rawdb.PrunerStats{}, nil
	}
	return rawdb.ReadPrunerStats(store)
}
