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

package pose

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/modules/rpc/jsonrpc"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// maxPoseBody caps PoSe POST bodies (1 MiB).
const maxPoseBody = 1 << 20

// HTTPHandler serves the PoSe endpoints on the root server:
//
//	POST /pose/challenge  {nodeId, serviceKind?, _auth?}
//	POST /pose/receipt    {challenge?, receipt, _auth?}
//	GET  /pose/status
type HTTPHandler struct {
	engine  *Engine
	auth    *InboundAuth
	limiter *jsonrpc.RateLimiter
	logger  log.Logger
}

// NewHTTPHandler builds the handler. Bodies are rate limited per IP at
// 60/min.
func NewHTTPHandler(engine *Engine, auth *InboundAuth) *HTTPHandler {
	return &HTTPHandler{
		engine: engine,
		auth:   auth,
		limiter: jsonrpc.NewRateLimiter(&jsonrpc.RateLimitConfig{
			MaxRequests:     60,
			Window:          time.Minute,
			CleanupInterval: time.Minute,
		}),
		logger: log.New("module", "pose-http"),
	}
}

// Stop releases the limiter.
func (h *HTTPHandler) Stop() { h.limiter.Stop() }

// Register mounts the endpoints on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/pose/challenge", h.handleChallenge)
	mux.HandleFunc("/pose/receipt", h.handleReceipt)
	mux.HandleFunc("/pose/status", h.handleStatus)
}

func (h *HTTPHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if !h.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return nil, false
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPoseBody+1))
	if err != nil || len(body) > maxPoseBody {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return nil, false
	}
	return body, true
}

func (h *HTTPHandler) authenticate(w http.ResponseWriter, r *http.Request, path string, body []byte) ([]byte, bool) {
	payload, _, err := h.auth.Verify(r.Context(), path, body)
	if err == nil {
		return payload, true
	}
	switch {
	case errors.Is(err, errors.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errors.ErrClockSkew), errors.Is(err, errors.ErrNonceReplay):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusUnauthorized, err.Error())
	}
	return nil, false
}

func (h *HTTPHandler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	payload, ok := h.authenticate(w, r, "/pose/challenge", body)
	if !ok {
		return
	}

	var req struct {
		NodeID      string `json:"nodeId"`
		ServiceKind uint8  `json:"serviceKind"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !types.IsHexHash(req.NodeID) {
		writeError(w, http.StatusBadRequest, "nodeId must be a 32-byte hex string")
		return
	}
	kind := req.ServiceKind
	if kind == 0 {
		kind = ServiceAvailability
	}

	challenge, err := h.engine.IssueChallenge(types.HexToHash(req.NodeID), kind)
	if errors.Is(err, errors.ErrQuotaExhausted) {
		writeError(w, http.StatusTooManyRequests, "challenge quota exhausted")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, challenge)
}

func (h *HTTPHandler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	payload, ok := h.authenticate(w, r, "/pose/receipt", body)
	if !ok {
		return
	}

	var req struct {
		Challenge *Challenge `json:"challenge"`
		Receipt   *Receipt   `json:"receipt"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Receipt == nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := h.engine.SubmitReceipt(req.Challenge, req.Receipt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"epochId": decimalU64(h.engine.CurrentEpoch()),
		"ts":      h.engine.NowMs(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
