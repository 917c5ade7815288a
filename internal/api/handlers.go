package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"canaldir/internal/audit"
	"canaldir/internal/authz"
	"canaldir/internal/blob"
	"canaldir/internal/models"
	"canaldir/internal/observability/metrics"
	"canaldir/internal/storage"
)

// Handler carries the dependencies shared by all endpoint handlers.
type Handler struct {
	Store   storage.Repository
	Policy  *authz.Policy
	Audit   *audit.Log
	Blob    blob.Client
	Metrics *metrics.Recorder
	Logger  *slog.Logger

	// UploadConcurrency caps simultaneous image uploads held in memory.
	// Zero means the default of 4.
	UploadConcurrency int64

	uploadSlotsOnce sync.Once
	uploadSlots     *semaphore.Weighted
}

func NewHandler(store storage.Repository, policy *authz.Policy, auditLog *audit.Log) *Handler {
	return &Handler{
		Store:   store,
		Policy:  policy,
		Audit:   auditLog,
		Blob:    blob.NewClient(blob.Config{}),
		Metrics: metrics.Default(),
	}
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics == nil {
		return metrics.Default()
	}
	return h.Metrics
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// actorFromQuery extracts the asserted actor id from the user_id query
// parameter. Identity is trust-on-assertion; there is no credential to
// verify, only a well-formed id to require.
func actorFromQuery(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if raw == "" {
		return 0, fmt.Errorf("user_id query parameter is required")
	}
	actorID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || actorID <= 0 {
		return 0, fmt.Errorf("user_id must be a positive integer")
	}
	return actorID, nil
}

func parseChannelID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("channel id must be a positive integer")
	}
	return id, nil
}

// authorize runs the policy for the named operation and writes the
// rejection when the actor is denied. The operation name only feeds the
// denial metric.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, actorID int64, action authz.Action, operation string) bool {
	err := h.Policy.Authorize(r.Context(), actorID, action)
	if err == nil {
		return true
	}
	if errors.Is(err, authz.ErrUnauthorized) {
		h.recorder().ObserveDenied(operation)
		writeError(w, http.StatusForbidden, fmt.Errorf("actor %d is not authorized", actorID))
		return false
	}
	h.logger().Error("authorization check failed", "actor_id", actorID, "operation", operation, "error", err)
	writeError(w, http.StatusInternalServerError, fmt.Errorf("authorization check failed"))
	return false
}

// writeStoreError maps datastore failures onto the API error taxonomy.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrChannelNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, fmt.Errorf("datastore operation failed: %w", err))
}

// recordAudit appends the audit entry for a mutation that already
// committed. On failure the client is told the change was applied but not
// recorded; the mutation is never rolled back.
func (h *Handler) recordAudit(w http.ResponseWriter, r *http.Request, actorID int64, entry auditEntry) bool {
	err := h.Audit.Record(r.Context(), actorID, entry.action, entry.channelID)
	if err == nil {
		h.recorder().ObserveMutation(entry.action)
		return true
	}
	h.recorder().ObserveAuditFailure()
	h.logger().Error("audit append failed after committed mutation",
		"actor_id", actorID, "action", entry.action, "channel_id", entry.channelID, "error", err)
	writeError(w, http.StatusInternalServerError,
		fmt.Errorf("channel change was applied but could not be recorded in the audit trail"))
	return false
}

type auditEntry struct {
	action    models.ActionKind
	channelID int64
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	status := "ok"
	storeStatus := "ok"
	code := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		status = "degraded"
		storeStatus = "unreachable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"services": map[string]string{
			"store": storeStatus,
		},
	})
}
