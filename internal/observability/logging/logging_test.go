package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Writer: &buf})

	logger.Info("hidden")
	logger.Warn("visible")

	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Fatalf("expected info line to be filtered, got %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("visible")) {
		t.Fatalf("expected warn line, got %s", buf.String())
	}
}

func TestWithContextAnnotatesIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithActorID(ctx, 42)
	WithContext(ctx, logger).Info("hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["request_id"] != "req-1" {
		t.Fatalf("expected request_id, got %v", record["request_id"])
	}
	if record["actor_id"] != float64(42) {
		t.Fatalf("expected actor_id, got %v", record["actor_id"])
	}
}

func TestRequestLoggerEmitsCompletionLine(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})

	handler := RequestLogger(RequestLoggerConfig{Logger: logger})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	response := httptest.NewRecorder()
	handler.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/channels/9", nil))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["msg"] != "request completed" {
		t.Fatalf("unexpected message %v", record["msg"])
	}
	if record["status"] != float64(http.StatusNotFound) {
		t.Fatalf("expected status 404, got %v", record["status"])
	}
	if record["path"] != "/channels/9" {
		t.Fatalf("expected path, got %v", record["path"])
	}
}
