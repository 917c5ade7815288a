package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newCORSChain(t *testing.T, cfg CORSConfig) http.Handler {
	t.Helper()
	policy, err := newCORSPolicy(cfg)
	if err != nil {
		t.Fatalf("newCORSPolicy: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return corsMiddleware(policy, nil, next)
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	chain := newCORSChain(t, CORSConfig{AllowedOrigins: []string{"https://painel.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	req.Header.Set("Origin", "https://painel.example.com")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://painel.example.com" {
		t.Fatalf("unexpected allow-origin header %q", got)
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin on origin-specific responses")
	}
}

func TestCORSBlocksUnknownOrigin(t *testing.T) {
	chain := newCORSChain(t, CORSConfig{AllowedOrigins: []string{"https://painel.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCORSWildcardAllowsAnyOrigin(t *testing.T) {
	chain := newCORSChain(t, CORSConfig{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	req.Header.Set("Origin", "https://preview-1234.example.app")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard allow-origin, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	chain := newCORSChain(t, CORSConfig{AllowedOrigins: []string{"https://painel.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/channels", nil)
	req.Header.Set("Origin", "https://painel.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Fatalf("expected allow-methods header on preflight")
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Fatalf("expected echoed request headers, got %q", got)
	}
}

func TestCORSMissingOriginPassesThrough(t *testing.T) {
	chain := newCORSChain(t, CORSConfig{})

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected no CORS headers without an Origin")
	}
}

func TestNewCORSPolicyRejectsMalformedOrigin(t *testing.T) {
	if _, err := newCORSPolicy(CORSConfig{AllowedOrigins: []string{"painel.example.com"}}); err == nil {
		t.Fatalf("expected error for origin without scheme")
	}
}
