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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// echoService is a test namespace.
type echoService struct{}

func (s *echoService) Echo(msg string) string { return msg }

func (s *echoService) Add(a, b int) int { return a + b }

func (s *echoService) Fail() (string, error) {
	return "", NewError(CodeInvalidParams, "always fails")
}

type adminService struct{}

func (s *adminService) Secret() string { return "top" }

func newTestServer(cfg ServerConfig) *Server {
	srv := NewServer(cfg)
	srv.RegisterAPIs([]API{
		{Namespace: "test", Service: &echoService{}},
		{Namespace: "admin", Service: &adminService{}},
	})
	return srv
}

func post(t *testing.T, handler http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals a single JSON-RPC response or fails the test.
func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestDispatchSingleRequest(t *testing.T) {
	srv := newTestServer(ServerConfig{})
	defer srv.Stop()

	rec := post(t, srv.Handler(), `{"jsonrpc":"2.0","id":1,"method":"test_echo","params":["hello"]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decode(t, rec)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result != "hello" {
		t.Errorf("result = %v, want hello", resp.Result)
	}
}

func TestDispatchBatch(t *testing.T) {
	srv := newTestServer(ServerConfig{})
	defer srv.Stop()

	body := `[{"jsonrpc":"2.0","id":1,"method":"test_add","params":[2,3]},
	          {"jsonrpc":"2.0","id":2,"method":"test_echo","params":["x"]}]`
	rec := post(t, srv.Handler(), body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resps []Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resps); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2", len(resps))
	}
	if n, ok := resps[0].Result.(float64); !ok || n != 5 {
		t.Errorf("add result = %v, want 5", resps[0].Result)
	}
	if resps[1].Result != "x" {
		t.Errorf("echo result = %v, want x", resps[1].Result)
	}
}

func TestMethodNotFound(t *testing.T) {
	srv := newTestServer(ServerConfig{})
	defer srv.Stop()

	rec := post(t, srv.Handler(), `{"jsonrpc":"2.0","id":1,"method":"test_missing"}`, nil)
	resp := decode(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error = %+v, want CodeMethodNotFound", resp.Error)
	}
}

func TestInvalidRequestAndParseError(t *testing.T) {
	srv := newTestServer(ServerConfig{})
	defer srv.Stop()

	resp := decode(t, post(t, srv.Handler(), `{"jsonrpc":"1.0","id":1,"method":"test_echo"}`, nil))
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("wrong version: error = %+v, want CodeInvalidRequest", resp.Error)
	}

	resp = decode(t, post(t, srv.Handler(), `{nope`, nil))
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("garbage body: error = %+v, want CodeParseError", resp.Error)
	}
}

func TestTypedErrorPassthrough(t *testing.T) {
	srv := newTestServer(ServerConfig{})
	defer srv.Stop()

	resp := decode(t, post(t, srv.Handler(), `{"jsonrpc":"2.0","id":1,"method":"test_fail"}`, nil))
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("error = %+v, want CodeInvalidParams", resp.Error)
	}
	if resp.Error.Message != "always fails" {
		t.Errorf("message = %q, want \"always fails\"", resp.Error.Message)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(ServerConfig{AuthToken: "secret-token"})
	defer srv.Stop()

	body := `{"jsonrpc":"2.0","id":1,"method":"test_echo","params":["a"]}`
	if rec := post(t, srv.Handler(), body, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := post(t, srv.Handler(), body, map[string]string{"Authorization": "Bearer wrong"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
	if rec := post(t, srv.Handler(), body, map[string]string{"Authorization": "Bearer secret-token"}); rec.Code != http.StatusOK {
		t.Errorf("good token: status = %d, want 200", rec.Code)
	}
}

func TestAdminNamespaceGated(t *testing.T) {
	closed := newTestServer(ServerConfig{AdminEnabled: false})
	defer closed.Stop()
	resp := decode(t, post(t, closed.Handler(), `{"jsonrpc":"2.0","id":1,"method":"admin_secret"}`, nil))
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("closed admin: error = %+v, want CodeMethodNotFound", resp.Error)
	}

	open := newTestServer(ServerConfig{AdminEnabled: true})
	defer open.Stop()
	resp = decode(t, post(t, open.Handler(), `{"jsonrpc":"2.0","id":1,"method":"admin_secret"}`, nil))
	if resp.Error != nil {
		t.Fatalf("open admin: unexpected error %+v", resp.Error)
	}
	if resp.Result != "top" {
		t.Errorf("result = %v, want top", resp.Result)
	}
}

func TestBodySizeCap(t *testing.T) {
	srv := newTestServer(ServerConfig{})
	defer srv.Stop()

	big := bytes.Repeat([]byte("a"), MaxRequestBody+10)
	if rec := post(t, srv.Handler(), string(big), nil); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(ServerConfig{RateLimit: &RateLimitConfig{
		MaxRequests:     2,
		Window:          time.Minute,
		CleanupInterval: time.Minute,
	}})
	defer srv.Stop()

	body := `{"jsonrpc":"2.0","id":1,"method":"test_echo","params":["a"]}`
	for i := 0; i < 2; i++ {
		if rec := post(t, srv.Handler(), body, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
	rec := post(t, srv.Handler(), body, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	resp := decode(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeRateLimited {
		t.Errorf("error = %+v, want CodeRateLimited", resp.Error)
	}
}

func TestOptionalTrailingParams(t *testing.T) {
	srv := newTestServer(ServerConfig{})
	defer srv.Stop()

	// Missing trailing params decode as zero values.
	resp := decode(t, post(t, srv.Handler(), `{"jsonrpc":"2.0","id":1,"method":"test_add","params":[7]}`, nil))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if n, ok := resp.Result.(float64); !ok || n != 7 {
		t.Errorf("result = %v, want 7", resp.Result)
	}

	// Excess params are rejected.
	resp = decode(t, post(t, srv.Handler(), `{"jsonrpc":"2.0","id":1,"method":"test_add","params":[1,2,3]}`, nil))
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("error = %+v, want CodeInvalidParams", resp.Error)
	}
}
