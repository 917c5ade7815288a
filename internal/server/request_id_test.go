package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"canaldir/internal/observability/logging"
)

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := logging.RequestIDFromContext(r.Context())
		if !ok {
			t.Fatal("expected request id in context")
		}
		seen = id
	})

	rec := httptest.NewRecorder()
	requestIDMiddlewareWithGenerator(func() string { return "fixed-id" }, next).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels", nil))

	if seen != "fixed-id" {
		t.Fatalf("expected generated id in context, got %q", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "fixed-id" {
		t.Fatalf("expected id echoed in header, got %q", got)
	}
}

func TestRequestIDMiddlewareHonorsProxyHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := logging.RequestIDFromContext(r.Context())
		if id != "upstream-7" {
			t.Fatalf("expected upstream id, got %q", id)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	req.Header.Set("X-Request-Id", "upstream-7")
	rec := httptest.NewRecorder()
	requestIDMiddleware(next).ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "upstream-7" {
		t.Fatalf("expected upstream id echoed, got %q", got)
	}
}

func TestRequestIDMiddlewareRecordsActor(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := logging.ActorIDFromContext(r.Context())
		if !ok || actorID != 42 {
			t.Fatalf("expected actor 42 in context, got %d (%v)", actorID, ok)
		}
	})

	req := httptest.NewRequest(http.MethodDelete, "/channels/3?user_id=42", nil)
	requestIDMiddleware(next).ServeHTTP(httptest.NewRecorder(), req)
}

func TestNewRequestIDIsUnique(t *testing.T) {
	first := newRequestID()
	second := newRequestID()
	if first == "" || first == second {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", first, second)
	}
}
