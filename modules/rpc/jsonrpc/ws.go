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

package jsonrpc

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chainofclaw/COC-sub002/log"
)

// WebSocket connection limits.
const (
	// MaxSubscriptionsPerClient caps live subscriptions per connection.
	MaxSubscriptionsPerClient = 10

	// MaxWSConnections caps simultaneous WebSocket clients.
	MaxWSConnections = 100

	// MaxWSConnectionsPerIP caps clients per remote IP.
	MaxWSConnectionsPerIP = 10

	// wsMessageRateLimit is the per-client inbound message budget.
	wsMessageRateLimit = 100
	wsMessageRateSpan  = time.Minute

	// wsIdleTimeout terminates silent connections.
	wsIdleTimeout = time.Hour

	// wsHeartbeatInterval is the ping cadence; non-responsive clients are
	// terminated.
	wsHeartbeatInterval = 30 * time.Second

	// wsCallTimeout bounds a single RPC call over WebSocket.
	wsCallTimeout = 10 * time.Second

	// MaxWSPayload caps one WebSocket message (1 MiB).
	MaxWSPayload = 1 << 20
)

// SubscriptionBackend creates live subscriptions. The sink must be called
// in commit order; cancel must be idempotent.
type SubscriptionBackend interface {
	Subscribe(subType string, params json.RawMessage, sink func(result interface{})) (cancel func(), err error)
}

// WSServer upgrades and manages WebSocket JSON-RPC clients.
type WSServer struct {
	rpc     *Server
	backend SubscriptionBackend
	logger  log.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*wsConn]struct{}
	perIP map[string]int
}

// NewWSServer binds the WebSocket transport to an RPC server and a
// subscription backend.
func NewWSServer(rpc *Server, backend SubscriptionBackend) *WSServer {
	return &WSServer{
		rpc:     rpc,
		backend: backend,
		logger:  log.New("module", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*wsConn]struct{}),
		perIP: make(map[string]int),
	}
}

type wsConn struct {
	sock    *websocket.Conn
	ip      string
	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[string]func() // subID -> cancel

	msgStamps []time.Time
	closed    bool
}

// ServeHTTP implements the ws:// endpoint.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	s.mu.Lock()
	if len(s.conns) >= MaxWSConnections || s.perIP[ip] >= MaxWSConnectionsPerIP {
		s.mu.Unlock()
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &wsConn{sock: sock, ip: ip, subs: make(map[string]func())}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.perIP[ip]++
	s.mu.Unlock()

	go s.heartbeat(conn)
	s.readLoop(conn)
	s.dropConn(conn)
}

func (s *WSServer) dropConn(conn *wsConn) {
	s.mu.Lock()
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		s.perIP[conn.ip]--
		if s.perIP[conn.ip] <= 0 {
			delete(s.perIP, conn.ip)
		}
	}
	s.mu.Unlock()

	conn.subMu.Lock()
	for id, cancel := range conn.subs {
		cancel()
		delete(conn.subs, id)
	}
	conn.closed = true
	conn.subMu.Unlock()
	_ = conn.sock.Close()
}

func (s *WSServer) heartbeat(conn *wsConn) {
	ticker := time.NewTicker(wsHeartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		conn.writeMu.Lock()
		err := conn.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		conn.writeMu.Unlock()
		if err != nil {
			_ = conn.sock.Close()
			return
		}
	}
}

func (s *WSServer) readLoop(conn *wsConn) {
	conn.sock.SetReadLimit(MaxWSPayload)
	resetIdle := func() {
		_ = conn.sock.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	}
	conn.sock.SetPongHandler(func(string) error {
		resetIdle()
		return nil
	})
	resetIdle()

	for {
		_, payload, err := conn.sock.ReadMessage()
		if err != nil {
			return
		}
		resetIdle()

		if !conn.allowMessage() {
			s.writeJSON(conn, NewErrorResponse(nil, NewError(CodeRateLimited, "message rate limit exceeded")))
			continue
		}

		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			s.writeJSON(conn, NewErrorResponse(nil, NewError(CodeParseError, "parse error")))
			continue
		}
		s.writeJSON(conn, s.handleWSRequest(conn, &req))
	}
}

// allowMessage applies the per-client sliding-window message budget.
func (c *wsConn) allowMessage() bool {
	now := time.Now()
	cutoff := now.Add(-wsMessageRateSpan)
	idx := 0
	for idx < len(c.msgStamps) && c.msgStamps[idx].Before(cutoff) {
		idx++
	}
	c.msgStamps = c.msgStamps[idx:]
	if len(c.msgStamps) >= wsMessageRateLimit {
		return false
	}
	c.msgStamps = append(c.msgStamps, now)
	return true
}

func (s *WSServer) handleWSRequest(conn *wsConn, req *Request) *Response {
	switch req.Method {
	case "eth_subscribe":
		return s.subscribe(conn, req)
	case "eth_unsubscribe":
		return s.unsubscribe(conn, req)
	}

	// Plain calls run with the WebSocket call timeout.
	done := make(chan *Response, 1)
	go func() { done <- s.rpc.Dispatch(req) }()
	select {
	case resp := <-done:
		return resp
	case <-time.After(wsCallTimeout):
		return NewErrorResponse(req.ID, NewError(CodeInternalError, "request timed out"))
	}
}

func (s *WSServer) subscribe(conn *wsConn, req *Request) *Response {
	if len(req.Params) == 0 {
		return NewErrorResponse(req.ID, NewError(CodeInvalidParams, "subscription type required"))
	}
	var subType string
	if err := json.Unmarshal(req.Params[0], &subType); err != nil {
		return NewErrorResponse(req.ID, NewError(CodeInvalidParams, "invalid subscription type"))
	}
	var filterParams json.RawMessage
	if len(req.Params) > 1 {
		filterParams = req.Params[1]
	}

	conn.subMu.Lock()
	if len(conn.subs) >= MaxSubscriptionsPerClient {
		conn.subMu.Unlock()
		return NewErrorResponse(req.ID, NewError(CodeInternalError, "subscription limit reached"))
	}
	conn.subMu.Unlock()

	subID := "0x" + hex.EncodeToString([]byte(uuid.New().String()[:16]))
	sink := func(result interface{}) {
		s.writeJSON(conn, NewNotification(subID, result))
	}
	cancel, err := s.backend.Subscribe(subType, filterParams, sink)
	if err != nil {
		return NewErrorResponse(req.ID, NewError(CodeInvalidParams, err.Error()))
	}

	conn.subMu.Lock()
	if conn.closed {
		conn.subMu.Unlock()
		cancel()
		return NewErrorResponse(req.ID, NewError(CodeInternalError, "connection closed"))
	}
	conn.subs[subID] = cancel
	conn.subMu.Unlock()
	return NewResponse(req.ID, subID)
}

func (s *WSServer) unsubscribe(conn *wsConn, req *Request) *Response {
	if len(req.Params) == 0 {
		return NewErrorResponse(req.ID, NewError(CodeInvalidParams, "subscription id required"))
	}
	var subID string
	if err := json.Unmarshal(req.Params[0], &subID); err != nil {
		return NewErrorResponse(req.ID, NewError(CodeInvalidParams, "invalid subscription id"))
	}
	conn.subMu.Lock()
	cancel, ok := conn.subs[subID]
	delete(conn.subs, subID)
	conn.subMu.Unlock()
	if ok {
		cancel()
	}
	return NewResponse(req.ID, ok)
}

func (s *WSServer) writeJSON(conn *wsConn, payload interface{}) {
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	if err := conn.sock.WriteJSON(payload); err != nil {
		s.logger.Debug("WebSocket write failed", "err", err)
	}
}
