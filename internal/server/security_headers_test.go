package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeadersDefaults(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	securityHeadersMiddleware(SecurityConfig{}, next).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels", nil))

	expectations := map[string]string{
		"Content-Security-Policy": defaultContentSecurityPolicy,
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"X-Content-Type-Options":  "nosniff",
	}
	for header, want := range expectations {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: expected %q, got %q", header, want, got)
		}
	}
}

func TestSecurityHeadersOverrides(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	securityHeadersMiddleware(SecurityConfig{ReferrerPolicy: "same-origin"}, next).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels", nil))

	if got := rec.Header().Get("Referrer-Policy"); got != "same-origin" {
		t.Fatalf("expected override, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected untouched fields to keep defaults, got %q", got)
	}
}
