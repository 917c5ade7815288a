package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"canaldir/internal/api"
	"canaldir/internal/audit"
	"canaldir/internal/authz"
	"canaldir/internal/observability/metrics"
	"canaldir/internal/storage"
)

const testDeveloperID = int64(99)

func newTestHandler(t *testing.T) (*api.Handler, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	policy := authz.NewPolicy(store, testDeveloperID)
	handler := api.NewHandler(store, policy, audit.NewLog(store))
	handler.Metrics = metrics.New()
	return handler, store
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	handler, _ := newTestHandler(t)
	if cfg.Metrics == nil {
		cfg.Metrics = handler.Metrics
	}
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv
}

func TestNewReturnsErrorWhenHandlerNil(t *testing.T) {
	t.Parallel()

	srv, err := New(nil, Config{})
	if err == nil {
		t.Fatalf("expected error when handler is nil, got server: %#v", srv)
	}
}

func TestRoutesAreRegistered(t *testing.T) {
	srv := newTestServer(t, Config{})
	chain := srv.Handler()

	cases := []struct {
		method string
		target string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/channels", http.StatusOK},
		{http.MethodGet, "/channels/1", http.StatusNotFound},
		{http.MethodGet, "/admins", http.StatusOK},
		{http.MethodGet, "/dev/admins", http.StatusOK},
		{http.MethodGet, fmt.Sprintf("/admin_logs?user_id=%d", testDeveloperID), http.StatusOK},
		{http.MethodGet, "/admin_logs/self?user_id=5", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.target, nil)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Errorf("%s %s: expected %d, got %d (%s)", tc.method, tc.target, tc.status, rec.Code, rec.Body.String())
		}
	}
}

func TestFullChainChannelCreation(t *testing.T) {
	srv := newTestServer(t, Config{})
	chain := srv.Handler()

	body := fmt.Sprintf(`{"userId":%d,"name":"Tech","description":"","link":"","image":""}`, testDeveloperID)
	req := httptest.NewRequest(http.MethodPost, "/channels", strings.NewReader(body))
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header on response")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers on response")
	}
	var channel struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&channel); err != nil {
		t.Fatalf("decode channel: %v", err)
	}
	if channel.Name != "Tech" {
		t.Fatalf("unexpected channel %+v", channel)
	}
}

func TestMutationRateLimitAppliesToWrites(t *testing.T) {
	srv := newTestServer(t, Config{
		RateLimit: RateLimitConfig{MutationLimit: 2, MutationWindow: time.Minute},
	})
	chain := srv.Handler()

	post := func() int {
		body := fmt.Sprintf(`{"userId":%d,"name":"Tech","description":"","link":"","image":""}`, testDeveloperID)
		req := httptest.NewRequest(http.MethodPost, "/channels", strings.NewReader(body))
		req.RemoteAddr = "203.0.113.7:4411"
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := post(); code != http.StatusCreated {
		t.Fatalf("first write: expected 201, got %d", code)
	}
	if code := post(); code != http.StatusCreated {
		t.Fatalf("second write: expected 201, got %d", code)
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Fatalf("third write: expected 429, got %d", code)
	}

	// Reads are not counted against the mutation window.
	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	req.RemoteAddr = "203.0.113.7:4411"
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("read during saturation: expected 200, got %d", rec.Code)
	}

	// A different client keeps its own window.
	body := fmt.Sprintf(`{"userId":%d,"name":"Outro","description":"","link":"","image":""}`, testDeveloperID)
	req = httptest.NewRequest(http.MethodPost, "/channels", strings.NewReader(body))
	req.RemoteAddr = "198.51.100.9:2200"
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("other client: expected 201, got %d", rec.Code)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{
		RateLimit: RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1},
	})
	chain := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
}

func TestExtractClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if ip := extractClientIP(req); ip != "203.0.113.5" {
		t.Fatalf("expected forwarded ip, got %q", ip)
	}

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.20")
	if ip := extractClientIP(req); ip != "198.51.100.20" {
		t.Fatalf("expected real-ip header, got %q", ip)
	}

	req.Header.Del("X-Real-IP")
	if ip := extractClientIP(req); ip != "10.0.0.1" {
		t.Fatalf("expected remote addr host, got %q", ip)
	}
}
