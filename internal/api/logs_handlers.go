package api

import (
	"fmt"
	"net/http"
	"time"

	"canaldir/internal/authz"
	"canaldir/internal/models"
)

type adminLogEntryResponse struct {
	ID        int64  `json:"id"`
	ActorID   int64  `json:"actorId"`
	Action    string `json:"action"`
	ChannelID int64  `json:"channelId"`
	CreatedAt string `json:"createdAt"`
}

func newAdminLogResponse(entries []models.AdminLogEntry) []adminLogEntryResponse {
	response := make([]adminLogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, adminLogEntryResponse{
			ID:        entry.ID,
			ActorID:   entry.ActorID,
			Action:    string(entry.Action),
			ChannelID: entry.ChannelID,
			CreatedAt: entry.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return response
}

// AdminLogs returns the full audit trail, newest first. Developer only.
func (h *Handler) AdminLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	actorID, err := actorFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !h.authorize(w, r, actorID, authz.ReadAuditLog, "read_audit_log") {
		return
	}
	entries, err := h.Audit.Entries(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAdminLogResponse(entries))
}

// AdminLogsSelf returns the calling actor's own audit entries, newest
// first. Any actor may read their own trail; no role is required.
func (h *Handler) AdminLogsSelf(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	actorID, err := actorFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := h.Audit.EntriesForActor(r.Context(), actorID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAdminLogResponse(entries))
}
