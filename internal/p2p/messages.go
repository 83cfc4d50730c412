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

package p2p

import (
	"encoding/hex"

	"github.com/chainofclaw/COC-sub002/common/block"
)

// HandshakeMsg opens every connection, in both directions.
type HandshakeMsg struct {
	NodeID    string `json:"nodeId"`
	ChainID   uint64 `json:"chainId"`
	Height    uint64 `json:"height"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature,omitempty"`
}

// HandshakeAckMsg confirms an accepted handshake.
type HandshakeAckMsg struct {
	NodeID string `json:"nodeId"`
	Height uint64 `json:"height"`
}

// TxMsg gossips one raw transaction.
type TxMsg struct {
	RawTx string `json:"rawTx"`
}

// BlockReqMsg asks for one block by number.
type BlockReqMsg struct {
	Number    uint64 `json:"number"`
	RequestID string `json:"requestId"`
}

// BlockRespMsg answers a BlockReqMsg; Block is nil when unknown.
type BlockRespMsg struct {
	RequestID string       `json:"requestId"`
	Block     *block.Block `json:"block,omitempty"`
}

// SnapshotReqMsg asks for the peer's full chain snapshot.
type SnapshotReqMsg struct {
	RequestID string `json:"requestId"`
	Height    uint64 `json:"height"`
}

// SnapshotMsg carries a full chain snapshot.
type SnapshotMsg struct {
	RequestID string         `json:"requestId,omitempty"`
	Blocks    []*block.Block `json:"blocks"`
}

// FindNodeMsg asks for peers near a target id.
type FindNodeMsg struct {
	RequestID string `json:"requestId"`
	Target    string `json:"target"`
}

// PeerInfo describes one known peer for discovery responses.
type PeerInfo struct {
	NodeID string `json:"nodeId"`
	Addr   string `json:"addr"`
}

// FindNodeRespMsg answers a FindNodeMsg with up to K nearest peers.
type FindNodeRespMsg struct {
	RequestID string     `json:"requestId"`
	Peers     []PeerInfo `json:"peers"`
}

// PingMsg / PongMsg keep idle connections alive.
type PingMsg struct {
	SentAtMs uint64 `json:"sentAtMs"`
}

type PongMsg struct {
	SentAtMs uint64 `json:"sentAtMs"`
}

// xorDistance compares hex node ids in the discovery keyspace. Shorter or
// malformed ids compare as maximally distant.
func xorDistance(a, b string) []byte {
	ab, errA := hex.DecodeString(trimHexPrefix(a))
	bb, errB := hex.DecodeString(trimHexPrefix(b))
	if errA != nil || errB != nil || len(ab) != len(bb) || len(ab) == 0 {
		far := make([]byte, 32)
		for i := range far {
			far[i] = 0xFF
		}
		return far
	}
	out := make([]byte, len(ab))
	for i := range ab {
		out[i] = ab[i] ^ bb[i]
	}
	return out
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
