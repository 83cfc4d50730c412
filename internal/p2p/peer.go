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
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/log"
)

// Per-session gossip dedup capacities.
const (
	seenTxCapacity    = 50_000
	seenBlockCapacity = 10_000
)

// Peer is one live TCP session. Frames within the session are strictly
// ordered; cross-peer ordering is not guaranteed.
type Peer struct {
	conn    net.Conn
	decoder *Decoder

	nodeID        string
	remoteIP      string
	inbound       bool
	authenticated bool
	height        uint64

	seenTx     *lru.Cache[types.Hash, struct{}]
	seenBlocks *lru.Cache[types.Hash, struct{}]

	writeMu sync.Mutex
	closed  bool
	logger  log.Logger

	frameStamps []time.Time
}

func newPeer(conn net.Conn, inbound bool) *Peer {
	seenTx, _ := lru.New[types.Hash, struct{}](seenTxCapacity)
	seenBlocks, _ := lru.New[types.Hash, struct{}](seenBlockCapacity)
	ip := ""
	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		ip = host
	}
	return &Peer{
		conn:       conn,
		decoder:    NewDecoder(),
		remoteIP:   ip,
		inbound:    inbound,
		seenTx:     seenTx,
		seenBlocks: seenBlocks,
		logger:     log.New("module", "p2p", "remote", conn.RemoteAddr().String()),
	}
}

// NodeID returns the authenticated peer id ("" before handshake).
func (p *Peer) NodeID() string { return p.nodeID }

// RemoteAddr returns the remote endpoint.
func (p *Peer) RemoteAddr() string { return p.conn.RemoteAddr().String() }

// Height returns the height announced in the handshake.
func (p *Peer) Height() uint64 { return p.height }

// MarkSeenTx records a tx hash; returns false when already seen.
func (p *Peer) MarkSeenTx(hash types.Hash) bool {
	if _, ok := p.seenTx.Get(hash); ok {
		return false
	}
	p.seenTx.Add(hash, struct{}{})
	return true
}

// MarkSeenBlock records a block hash; returns false when already seen.
func (p *Peer) MarkSeenBlock(hash types.Hash) bool {
	if _, ok := p.seenBlocks.Get(hash); ok {
		return false
	}
	p.seenBlocks.Add(hash, struct{}{})
	return true
}

// allowFrame applies the inbound per-peer frame budget over a sliding
// window. Only called from the session's read loop.
func (p *Peer) allowFrame(window time.Duration, maxFrames int) bool {
	now := time.Now()
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(p.frameStamps) && p.frameStamps[idx].Before(cutoff) {
		idx++
	}
	p.frameStamps = p.frameStamps[idx:]
	if len(p.frameStamps) >= maxFrames {
		return false
	}
	p.frameStamps = append(p.frameStamps, now)
	return true
}

// Send writes one frame. Sends from different goroutines serialize so the
// in-connection frame order is preserved.
func (p *Peer) Send(msgType MsgType, payload []byte) error {
	raw, err := EncodeFrame(Frame{Type: msgType, Payload: payload})
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.closed {
		return net.ErrClosed
	}
	_, err = p.conn.Write(raw)
	return err
}

// Close tears the session down. Safe to call more than once.
func (p *Peer) Close() {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	_ = p.conn.Close()
}
