package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"canaldir/internal/authz"
	"canaldir/internal/models"
	"canaldir/internal/storage"
)

type createChannelRequest struct {
	UserID      int64  `json:"userId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Image       string `json:"image"`
}

type updateChannelRequest struct {
	UserID      int64   `json:"userId"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Link        *string `json:"link"`
	Image       *string `json:"image"`
}

type channelResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Image       string `json:"image"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type deleteChannelResponse struct {
	ID      int64  `json:"id"`
	Deleted bool   `json:"deleted"`
	Detail  string `json:"detail"`
}

func newChannelResponse(channel models.Channel) channelResponse {
	return channelResponse{
		ID:          channel.ID,
		Name:        channel.Name,
		Description: channel.Description,
		Link:        channel.Link,
		Image:       channel.Image,
		CreatedAt:   channel.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   channel.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// Channels serves the collection routes: public listing with optional
// search, and authorized creation.
func (h *Handler) Channels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		channels, err := h.Store.ListChannels(r.Context(), query)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		response := make([]channelResponse, 0, len(channels))
		for _, channel := range channels {
			response = append(response, newChannelResponse(channel))
		}
		writeJSON(w, http.StatusOK, response)
	case http.MethodPost:
		var req createChannelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.UserID <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("name is required"))
			return
		}
		if !h.authorize(w, r, req.UserID, authz.ManageChannels, "create_channel") {
			return
		}
		channel, err := h.Store.CreateChannel(r.Context(), storage.CreateChannelParams{
			Name:        strings.TrimSpace(req.Name),
			Description: strings.TrimSpace(req.Description),
			Link:        strings.TrimSpace(req.Link),
			Image:       strings.TrimSpace(req.Image),
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if !h.recordAudit(w, r, req.UserID, auditEntry{action: models.ActionCreatedChannel, channelID: channel.ID}) {
			return
		}
		writeJSON(w, http.StatusCreated, newChannelResponse(channel))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// ChannelByID serves the per-channel routes: public read, authorized
// update and delete.
func (h *Handler) ChannelByID(w http.ResponseWriter, r *http.Request) {
	rawID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/channels/"), "/")
	if rawID == "" || strings.Contains(rawID, "/") {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown channel path"))
		return
	}
	channelID, err := parseChannelID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		channel, err := h.Store.GetChannel(r.Context(), channelID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newChannelResponse(channel))
	case http.MethodPut:
		var req updateChannelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.UserID <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
			return
		}
		if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("name must not be empty"))
			return
		}
		if !h.authorize(w, r, req.UserID, authz.ManageChannels, "update_channel") {
			return
		}
		channel, err := h.Store.UpdateChannel(r.Context(), channelID, storage.ChannelUpdate{
			Name:        req.Name,
			Description: req.Description,
			Link:        req.Link,
			Image:       req.Image,
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if !h.recordAudit(w, r, req.UserID, auditEntry{action: models.ActionUpdatedChannel, channelID: channel.ID}) {
			return
		}
		writeJSON(w, http.StatusOK, newChannelResponse(channel))
	case http.MethodDelete:
		actorID, err := actorFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !h.authorize(w, r, actorID, authz.ManageChannels, "delete_channel") {
			return
		}
		if err := h.Store.DeleteChannel(r.Context(), channelID); err != nil {
			writeStoreError(w, err)
			return
		}
		if !h.recordAudit(w, r, actorID, auditEntry{action: models.ActionDeletedChannel, channelID: channelID}) {
			return
		}
		writeJSON(w, http.StatusOK, deleteChannelResponse{
			ID:      channelID,
			Deleted: true,
			Detail:  "channel deleted",
		})
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}
