// Package metrics aggregates in-memory counters for the API and exposes
// them in Prometheus text exposition format. The directory is small enough
// that a scrape-time render of a mutex-guarded map beats carrying a full
// client library.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"canaldir/internal/models"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates HTTP request totals, channel mutation counts by
// action, audit append failures, and upload volume.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	mutationCount   map[models.ActionKind]uint64
	deniedCount     map[string]uint64
	auditFailures   uint64
	uploadCount     uint64
	uploadBytes     uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		mutationCount:   make(map[models.ActionKind]uint64),
		deniedCount:     make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared by the package helpers.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by HTTP
// method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveMutation counts a committed channel mutation by action kind.
func (r *Recorder) ObserveMutation(action models.ActionKind) {
	r.mu.Lock()
	r.mutationCount[action]++
	r.mu.Unlock()
}

// ObserveDenied counts an authorization denial by operation name.
func (r *Recorder) ObserveDenied(operation string) {
	name := strings.ToLower(strings.TrimSpace(operation))
	if name == "" {
		name = "unknown"
	}
	r.mu.Lock()
	r.deniedCount[name]++
	r.mu.Unlock()
}

// ObserveAuditFailure counts a mutation whose audit entry could not be
// written.
func (r *Recorder) ObserveAuditFailure() {
	r.mu.Lock()
	r.auditFailures++
	r.mu.Unlock()
}

// ObserveUpload counts a stored image and its size.
func (r *Recorder) ObserveUpload(bytes int) {
	r.mu.Lock()
	r.uploadCount++
	if bytes > 0 {
		r.uploadBytes += uint64(bytes)
	}
	r.mu.Unlock()
}

// MutationCounts returns a copy of the mutation counters for tests.
func (r *Recorder) MutationCounts() map[models.ActionKind]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.ActionKind]uint64, len(r.mutationCount))
	for k, v := range r.mutationCount {
		out[k] = v
	}
	return out
}

// AuditFailures returns the audit failure counter for tests.
func (r *Recorder) AuditFailures() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.auditFailures
}

// Reset clears all counters. Intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.mutationCount = make(map[models.ActionKind]uint64)
	r.deniedCount = make(map[string]uint64)
	r.auditFailures = 0
	r.uploadCount = 0
	r.uploadBytes = 0
}

// Handler exposes the Recorder as an http.Handler writing Prometheus text
// exposition data.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics in Prometheus text format with stable ordering.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	actions := r.sortedActions()
	denied := r.sortedDenied()

	fmt.Fprintln(w, "# HELP canaldir_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE canaldir_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "canaldir_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP canaldir_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE canaldir_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "canaldir_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP canaldir_channel_mutations_total Committed channel mutations by action")
	fmt.Fprintln(w, "# TYPE canaldir_channel_mutations_total counter")
	for _, action := range actions {
		fmt.Fprintf(w, "canaldir_channel_mutations_total{action=\"%s\"} %d\n", action, r.mutationCount[action])
	}

	fmt.Fprintln(w, "# HELP canaldir_authz_denied_total Authorization denials by operation")
	fmt.Fprintln(w, "# TYPE canaldir_authz_denied_total counter")
	for _, operation := range denied {
		fmt.Fprintf(w, "canaldir_authz_denied_total{operation=\"%s\"} %d\n", operation, r.deniedCount[operation])
	}

	fmt.Fprintln(w, "# HELP canaldir_audit_append_failures_total Mutations whose audit entry could not be written")
	fmt.Fprintln(w, "# TYPE canaldir_audit_append_failures_total counter")
	fmt.Fprintf(w, "canaldir_audit_append_failures_total %d\n", r.auditFailures)

	fmt.Fprintln(w, "# HELP canaldir_uploads_total Channel images stored")
	fmt.Fprintln(w, "# TYPE canaldir_uploads_total counter")
	fmt.Fprintf(w, "canaldir_uploads_total %d\n", r.uploadCount)

	fmt.Fprintln(w, "# HELP canaldir_upload_bytes_total Bytes of channel images stored")
	fmt.Fprintln(w, "# TYPE canaldir_upload_bytes_total counter")
	fmt.Fprintf(w, "canaldir_upload_bytes_total %d\n", r.uploadBytes)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedActions() []models.ActionKind {
	actions := make([]models.ActionKind, 0, len(r.mutationCount))
	for action := range r.mutationCount {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

func (r *Recorder) sortedDenied() []string {
	operations := make([]string, 0, len(r.deniedCount))
	for operation := range r.deniedCount {
		operations = append(operations, operation)
	}
	sort.Strings(operations)
	return operations
}

// normalizePath collapses numeric path segments so per-channel URLs share a
// label set.
func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if isNumeric(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func isNumeric(segment string) bool {
	if segment == "" {
		return false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ObserveRequest records on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveMutation records on the default recorder.
func ObserveMutation(action models.ActionKind) {
	defaultRecorder.ObserveMutation(action)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
