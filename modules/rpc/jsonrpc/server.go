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
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/rs/cors"

	"github.com/chainofclaw/COC-sub002/log"
)

// MaxRequestBody caps HTTP request bodies (1 MiB).
const MaxRequestBody = 1 << 20

// ServerConfig parameterizes the HTTP transport.
type ServerConfig struct {
	// AuthToken enables bearer-token auth when non-empty.
	AuthToken string

	// JWTSecret gates admin-namespace calls when non-empty.
	JWTSecret []byte

	// AdminEnabled opens the admin namespace at all.
	AdminEnabled bool

	// RateLimit is the per-IP window config; nil uses the default.
	RateLimit *RateLimitConfig
}

// Server dispatches JSON-RPC over HTTP and WebSocket.
type Server struct {
	cfg      ServerConfig
	registry *serviceRegistry
	limiter  *RateLimiter
	logger   log.Logger
}

// NewServer creates an empty server.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		cfg:      cfg,
		registry: newServiceRegistry(),
		limiter:  NewRateLimiter(cfg.RateLimit),
		logger:   log.New("module", "rpc"),
	}
}

// RegisterAPIs adds every namespace service.
func (s *Server) RegisterAPIs(apis []API) {
	for _, api := range apis {
		s.registry.register(api.Namespace, api.Service)
	}
}

// Stop releases background resources.
func (s *Server) Stop() {
	s.limiter.Stop()
}

// Handler returns the full HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(http.HandlerFunc(s.serveHTTP))
}

// MethodNames lists every registered method.
func (s *Server) MethodNames() []string { return s.registry.methodNames() }

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.ContentLength > MaxRequestBody {
		http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
		return
	}
	ip := getClientIP(r)
	if !s.limiter.Allow(ip) {
		writeJSON(w, http.StatusTooManyRequests, NewErrorResponse(nil, NewError(CodeRateLimited, "rate limit exceeded")))
		return
	}
	if s.cfg.AuthToken != "" && !s.checkBearer(r) {
		writeJSON(w, http.StatusUnauthorized, NewErrorResponse(nil, NewError(CodeUnauthorized, "unauthorized")))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBody+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse(nil, NewError(CodeInvalidRequest, "unreadable body")))
		return
	}
	if len(body) > MaxRequestBody {
		http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
		return
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var reqs []Request
		if err := json.Unmarshal(body, &reqs); err != nil {
			writeJSON(w, http.StatusOK, NewErrorResponse(nil, NewError(CodeParseError, "parse error")))
			return
		}
		resps := make([]*Response, 0, len(reqs))
		for i := range reqs {
			resps = append(resps, s.dispatch(&reqs[i], r))
		}
		writeJSON(w, http.StatusOK, resps)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, NewErrorResponse(nil, NewError(CodeParseError, "parse error")))
		return
	}
	writeJSON(w, http.StatusOK, s.dispatch(&req, r))
}

// dispatch runs one request through auth gates and the registry.
func (s *Server) dispatch(req *Request, httpReq *http.Request) *Response {
	if req.Version != Vsn || req.Method == "" {
		return NewErrorResponse(req.ID, NewError(CodeInvalidRequest, "invalid request"))
	}
	ns := namespaceOf(req.Method)
	if ns == "admin" {
		if !s.cfg.AdminEnabled {
			return NewErrorResponse(req.ID, NewError(CodeMethodNotFound, "the method "+req.Method+" does not exist/is not available"))
		}
		if len(s.cfg.JWTSecret) > 0 && (httpReq == nil || !s.checkJWT(httpReq)) {
			return NewErrorResponse(req.ID, NewError(CodeUnauthorized, "admin namespace requires a valid token"))
		}
	}
	cb := s.registry.lookup(req.Method)
	if cb == nil {
		return NewErrorResponse(req.ID, NewError(CodeMethodNotFound, "the method "+req.Method+" does not exist/is not available"))
	}
	result, rpcErr := cb.call(req.Params)
	if rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	return NewResponse(req.ID, result)
}

// Dispatch executes one already-parsed request (WebSocket path).
func (s *Server) Dispatch(req *Request) *Response {
	return s.dispatch(req, nil)
}

// checkBearer compares the Authorization bearer token in constant time.
func (s *Server) checkBearer(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	token := auth[len(prefix):]
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1
}

// checkJWT validates an HS256 token against the configured secret.
func (s *Server) checkJWT(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	_, err := jwt.Parse(auth[len(prefix):], func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, NewError(CodeUnauthorized, "unexpected signing method")
		}
		return s.cfg.JWTSecret, nil
	})
	return err == nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Debug("RPC response write failed", "err", err)
	}
}
