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
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainofclaw/COC-sub002/common/block"
	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/conf"
	gsync "github.com/chainofclaw/COC-sub002/internal/sync"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

const (
	// DefaultMaxConnections is the global admission cap.
	DefaultMaxConnections = 50

	// MaxConnectionsPerIP is the per-IP admission cap.
	MaxConnectionsPerIP = 5

	// discoveryTimeout bounds a FindNode round trip.
	discoveryTimeout = 10 * time.Second

	// DiscoveryK is the number of nearest peers returned per request.
	DiscoveryK = 16
)

var peerGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "coc_p2p_peers",
	Help: "Number of live peer sessions.",
})

func init() {
	prometheus.DefaultRegisterer.MustRegister(peerGauge)
}

// Backend is the chain-engine surface the fabric dispatches into.
type Backend interface {
	Height() uint64
	HandleRemoteBlock(blk *block.Block) error
	HandleRemoteTx(rawTx string) error
	MakeSnapshot() []*block.Block
	MaybeAdoptSnapshot(blocks []*block.Block) (bool, error)
	GetBlockByNumber(number uint64) *block.Block
}

// RelayFunc forwards freshly accepted gossip to the cross-protocol HTTP
// relay. kind is "block" or "tx".
type RelayFunc func(kind string, payload []byte)

// ServerConfig parameterizes the fabric.
type ServerConfig struct {
	ChainID            uint64
	NodeID             string
	ListenAddr         string
	MaxConnections     int
	MaxDiscoveredBatch int
	InboundAuthMode    conf.AuthMode
	Signer             *btcec.PrivateKey

	// RateLimitWindow / RateLimitMaxFrames gate inbound frames per peer.
	RateLimitWindow    time.Duration
	RateLimitMaxFrames int
}

// Server owns the listener, the peer set and discovery state.
type Server struct {
	cfg     ServerConfig
	backend Backend
	relay   RelayFunc
	logger  log.Logger

	mu        sync.Mutex
	listener  net.Listener
	peers     map[*Peer]struct{}
	perIP     map[string]int
	known     map[string]string // nodeID -> dial addr
	pending   map[string]chan FindNodeRespMsg
	onDropped func(p *Peer, err error)
	quit      chan struct{}

	sessionsAccepted *gsync.AtomicUint64
	peersPenalized   *gsync.AtomicUint64
}

// NewServer creates a fabric bound to a backend.
func NewServer(cfg ServerConfig, backend Backend, relay RelayFunc) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.MaxDiscoveredBatch <= 0 {
		cfg.MaxDiscoveredBatch = 200
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.RateLimitMaxFrames <= 0 {
		cfg.RateLimitMaxFrames = 240
	}
	return &Server{
		cfg:     cfg,
		backend: backend,
		relay:   relay,
		logger:  log.New("module", "p2p"),
		peers:   make(map[*Peer]struct{}),
		perIP:   make(map[string]int),
		known:   make(map[string]string),
		pending:          make(map[string]chan FindNodeRespMsg),
		quit:             make(chan struct{}),
		sessionsAccepted: gsync.NewAtomicUint64(0),
		peersPenalized:   gsync.NewAtomicUint64(0),
	}
}

// Start begins accepting connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return errors.Wrap(err, "p2p listen")
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("P2P listening", "addr", ln.Addr().String())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.quit:
					return
				default:
					s.logger.Warn("Accept failed", "err", err)
					continue
				}
			}
			go s.runConn(conn, true)
		}
	}()
	return nil
}

// Stop closes the listener and every peer.
func (s *Server) Stop() {
	close(s.quit)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	peers := make([]*Peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
}

// Stats reports lifetime session counters.
func (s *Server) Stats() (accepted, penalized uint64) {
	return s.sessionsAccepted.Load(), s.peersPenalized.Load()
}

// ListenAddr returns the bound listener address, or "" before Start.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// PeerCount returns the live session count.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Peers lists live sessions.
func (s *Server) Peers() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Peer, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	return out
}

// SetDroppedHook installs the peer-penalty callback.
func (s *Server) SetDroppedHook(hook func(p *Peer, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDropped = hook
}

// Dial connects out to addr and runs the session.
func (s *Server) Dial(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return errors.Wrapf(err, "dial %s", addr)
	}
	go s.runConn(conn, false)
	return nil
}

// admit applies the global and per-IP caps.
func (s *Server) admit(p *Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) >= s.cfg.MaxConnections {
		return errors.Wrapf(errors.ErrTooManyPeers, "global cap %d", s.cfg.MaxConnections)
	}
	if s.perIP[p.remoteIP] >= MaxConnectionsPerIP {
		return errors.Wrapf(errors.ErrTooManyPeers, "per-ip cap %d for %s", MaxConnectionsPerIP, p.remoteIP)
	}
	s.peers[p] = struct{}{}
	s.perIP[p.remoteIP]++
	s.sessionsAccepted.Inc()
	peerGauge.Set(float64(len(s.peers)))
	return nil
}

func (s *Server) drop(p *Peer, err error) {
	s.mu.Lock()
	if _, ok := s.peers[p]; ok {
		delete(s.peers, p)
		s.perIP[p.remoteIP]--
		if s.perIP[p.remoteIP] <= 0 {
			delete(s.perIP, p.remoteIP)
		}
	}
	hook := s.onDropped
	peerGauge.Set(float64(len(s.peers)))
	s.mu.Unlock()

	p.Close()
	if err != nil {
		s.peersPenalized.Inc()
		if hook != nil {
			hook(p, err)
		}
	}
}

func (s *Server) runConn(conn net.Conn, inbound bool) {
	p := newPeer(conn, inbound)
	if err := s.admit(p); err != nil {
		s.logger.Warn("Connection rejected", "remote", p.RemoteAddr(), "err", err)
		_ = conn.Close()
		return
	}
	defer s.drop(p, nil)

	// Both sides open with a handshake immediately after accept.
	if err := s.sendHandshake(p); err != nil {
		s.logger.Warn("Handshake send failed", "remote", p.RemoteAddr(), "err", err)
		return
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frames, err := p.decoder.Feed(buf[:n])
		if err != nil {
			s.logger.Warn("Frame decode failed, dropping peer", "remote", p.RemoteAddr(), "err", err)
			s.drop(p, err)
			return
		}
		for _, f := range frames {
			if !p.allowFrame(s.cfg.RateLimitWindow, s.cfg.RateLimitMaxFrames) {
				s.logger.Warn("Peer over frame budget, dropping", "remote", p.RemoteAddr())
				s.drop(p, errors.ErrTooManyPeers)
				return
			}
			if err := s.handleFrame(p, f); err != nil {
				s.logger.Warn("Peer misbehaved, dropping", "remote", p.RemoteAddr(), "type", fmt.Sprintf("0x%02x", uint8(f.Type)), "err", err)
				s.drop(p, err)
				return
			}
		}
	}
}

func (s *Server) sendHandshake(p *Peer) error {
	nonce := uuid.NewString()
	msg := HandshakeMsg{
		NodeID:  s.cfg.NodeID,
		ChainID: s.cfg.ChainID,
		Height:  s.backend.Height(),
		Nonce:   nonce,
	}
	if s.cfg.Signer != nil {
		sig, err := crypto.Sign(crypto.HandshakeMessage(s.cfg.ChainID, s.cfg.NodeID, nonce), s.cfg.Signer)
		if err != nil {
			return err
		}
		msg.Signature = fmt.Sprintf("0x%x", sig)
	}
	raw, err := json.Marshal(&msg)
	if err != nil {
		return err
	}
	return p.Send(MsgHandshake, raw)
}

func (s *Server) handleFrame(p *Peer, f Frame) error {
	switch f.Type {
	case MsgHandshake:
		return s.handleHandshake(p, f.Payload)

	case MsgHandshakeAck:
		return nil

	case MsgBlock:
		var blk block.Block
		if err := json.Unmarshal(f.Payload, &blk); err != nil {
			return errors.Wrap(err, "bad block payload")
		}
		if !p.MarkSeenBlock(blk.Hash) {
			return nil // duplicate; idempotent re-receipt
		}
		if err := s.backend.HandleRemoteBlock(&blk); err != nil {
			return err
		}
		s.forward(p, MsgBlock, f.Payload)
		if s.relay != nil {
			s.relay("block", f.Payload)
		}
		return nil

	case MsgTx:
		var msg TxMsg
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			return errors.Wrap(err, "bad tx payload")
		}
		hash := crypto.Keccak256Hash([]byte(msg.RawTx))
		if !p.MarkSeenTx(hash) {
			return nil
		}
		if err := s.backend.HandleRemoteTx(msg.RawTx); err != nil {
			// Admission rejects (stale nonce, known tx) are not protocol
			// violations; the gossip stops here.
			s.logger.Debug("Gossiped tx rejected", "err", err)
			return nil
		}
		s.forward(p, MsgTx, f.Payload)
		if s.relay != nil {
			s.relay("tx", f.Payload)
		}
		return nil

	case MsgBlockReq:
		var req BlockReqMsg
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			return errors.Wrap(err, "bad block request")
		}
		resp := BlockRespMsg{RequestID: req.RequestID, Block: s.backend.GetBlockByNumber(req.Number)}
		raw, err := json.Marshal(&resp)
		if err != nil {
			return err
		}
		return p.Send(MsgBlockResp, raw)

	case MsgBlockResp:
		var resp BlockRespMsg
		if err := json.Unmarshal(f.Payload, &resp); err != nil {
			return errors.Wrap(err, "bad block response")
		}
		if resp.Block != nil {
			return s.backend.HandleRemoteBlock(resp.Block)
		}
		return nil

	case MsgSnapshotReq:
		var req SnapshotReqMsg
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			return errors.Wrap(err, "bad snapshot request")
		}
		resp := SnapshotMsg{RequestID: req.RequestID, Blocks: s.backend.MakeSnapshot()}
		raw, err := json.Marshal(&resp)
		if err != nil {
			return err
		}
		return p.Send(MsgSnapshot, raw)

	case MsgSnapshot:
		var msg SnapshotMsg
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			return errors.Wrap(err, "bad snapshot payload")
		}
		adopted, err := s.backend.MaybeAdoptSnapshot(msg.Blocks)
		if err != nil {
			return err
		}
		if adopted {
			s.logger.Info("Adopted peer snapshot", "peer", p.NodeID(), "height", s.backend.Height())
		}
		return nil

	case MsgFindNode:
		return s.handleFindNode(p, f.Payload)

	case MsgFindNodeResp:
		var resp FindNodeRespMsg
		if err := json.Unmarshal(f.Payload, &resp); err != nil {
			return errors.Wrap(err, "bad findnode response")
		}
		s.mu.Lock()
		ch, ok := s.pending[resp.RequestID]
		delete(s.pending, resp.RequestID)
		s.mu.Unlock()
		if ok {
			ch <- resp
		}
		return nil

	case MsgPing:
		var ping PingMsg
		if err := json.Unmarshal(f.Payload, &ping); err != nil {
			return errors.Wrap(err, "bad ping")
		}
		raw, _ := json.Marshal(&PongMsg{SentAtMs: ping.SentAtMs})
		return p.Send(MsgPong, raw)

	case MsgPong, MsgBftPrepare, MsgBftCommit:
		// BFT frames are reserved for the future weighted consensus.
		return nil

	default:
		return errors.Errorf("unknown frame type 0x%02x", uint8(f.Type))
	}
}

func (s *Server) handleHandshake(p *Peer, payload []byte) error {
	var msg HandshakeMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return errors.Wrap(err, "bad handshake payload")
	}
	if msg.ChainID != s.cfg.ChainID {
		return errors.Wrapf(errors.ErrChainMismatch, "peer on chain %d", msg.ChainID)
	}
	mode := s.cfg.InboundAuthMode
	if mode != conf.AuthModeOff {
		if msg.Signature == "" {
			if mode == conf.AuthModeEnforce {
				return errors.Wrap(errors.ErrHandshakeAuth, "unauthenticated connection")
			}
			s.logger.Warn("Unauthenticated handshake accepted in monitor mode", "peer", msg.NodeID)
		} else {
			sig := types.FromHex(msg.Signature)
			canonical := crypto.HandshakeMessage(msg.ChainID, msg.NodeID, msg.Nonce)
			if !crypto.VerifyNodeSig(canonical, sig, types.HexToAddress(msg.NodeID)) {
				return errors.ErrHandshakeAuth
			}
			p.authenticated = true
		}
	}
	p.nodeID = msg.NodeID
	p.height = msg.Height

	s.mu.Lock()
	s.known[msg.NodeID] = p.RemoteAddr()
	s.mu.Unlock()

	ack, _ := json.Marshal(&HandshakeAckMsg{NodeID: s.cfg.NodeID, Height: s.backend.Height()})
	if err := p.Send(MsgHandshakeAck, ack); err != nil {
		return err
	}

	// A taller peer is worth syncing from.
	if msg.Height > s.backend.Height() {
		req, _ := json.Marshal(&SnapshotReqMsg{RequestID: uuid.NewString(), Height: s.backend.Height()})
		return p.Send(MsgSnapshotReq, req)
	}
	return nil
}

// forward re-gossips a payload to every other peer that has not seen it.
func (s *Server) forward(origin *Peer, msgType MsgType, payload []byte) {
	var hash types.Hash
	switch msgType {
	case MsgBlock:
		var blk block.Block
		if json.Unmarshal(payload, &blk) == nil {
			hash = blk.Hash
		}
	case MsgTx:
		// Same key as handleFrame: the hash of the raw tx, not of the JSON.
		var msg TxMsg
		if json.Unmarshal(payload, &msg) == nil {
			hash = crypto.Keccak256Hash([]byte(msg.RawTx))
		}
	}
	for _, p := range s.Peers() {
		if p == origin {
			continue
		}
		seen := false
		switch msgType {
		case MsgBlock:
			seen = !p.MarkSeenBlock(hash)
		case MsgTx:
			seen = !p.MarkSeenTx(hash)
		}
		if seen {
			continue
		}
		if err := p.Send(msgType, payload); err != nil {
			s.logger.Debug("Forward failed", "peer", p.RemoteAddr(), "err", err)
		}
	}
}

// BroadcastBlock gossips a locally produced block to all peers.
func (s *Server) BroadcastBlock(blk *block.Block) {
	raw, err := json.Marshal(blk)
	if err != nil {
		return
	}
	s.forward(nil, MsgBlock, raw)
	if s.relay != nil {
		s.relay("block", raw)
	}
}

// BroadcastTx gossips an admitted transaction to all peers.
func (s *Server) BroadcastTx(rawTx string) {
	raw, err := json.Marshal(&TxMsg{RawTx: rawTx})
	if err != nil {
		return
	}
	s.forward(nil, MsgTx, raw)
}

// =============================================================================
// Discovery
// =============================================================================

func (s *Server) handleFindNode(p *Peer, payload []byte) error {
	var req FindNodeMsg
	if err := json.Unmarshal(payload, &req); err != nil {
		return errors.Wrap(err, "bad findnode request")
	}
	s.mu.Lock()
	peers := make([]PeerInfo, 0, len(s.known))
	for id, addr := range s.known {
		if id == p.NodeID() {
			continue
		}
		peers = append(peers, PeerInfo{NodeID: id, Addr: addr})
	}
	maxBatch := s.cfg.MaxDiscoveredBatch
	s.mu.Unlock()

	sort.Slice(peers, func(i, j int) bool {
		di := xorDistance(peers[i].NodeID, req.Target)
		dj := xorDistance(peers[j].NodeID, req.Target)
		for k := range di {
			if di[k] != dj[k] {
				return di[k] < dj[k]
			}
		}
		return false
	})
	limit := DiscoveryK
	if limit > maxBatch {
		limit = maxBatch
	}
	if len(peers) > limit {
		peers = peers[:limit]
	}
	raw, err := json.Marshal(&FindNodeRespMsg{RequestID: req.RequestID, Peers: peers})
	if err != nil {
		return err
	}
	return p.Send(MsgFindNodeResp, raw)
}

// FindNode asks p for the peers nearest target, waiting up to the
// discovery timeout. The pending entry is cleared on timeout.
func (s *Server) FindNode(p *Peer, target string) ([]PeerInfo, error) {
	requestID := uuid.NewString()
	ch := make(chan FindNodeRespMsg, 1)
	s.mu.Lock()
	s.pending[requestID] = ch
	s.mu.Unlock()

	raw, err := json.Marshal(&FindNodeMsg{RequestID: requestID, Target: target})
	if err != nil {
		return nil, err
	}
	if err := p.Send(MsgFindNode, raw); err != nil {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		// Register discoveries for later dials, deduplicated by id.
		s.mu.Lock()
		for _, info := range resp.Peers {
			if _, ok := s.known[info.NodeID]; !ok {
				s.known[info.NodeID] = info.Addr
			}
		}
		s.mu.Unlock()
		return resp.Peers, nil
	case <-time.After(discoveryTimeout):
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
		return nil, errors.Errorf("findnode %s timed out", requestID)
	}
}
