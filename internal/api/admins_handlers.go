package api

import (
	"errors"
	"fmt"
	"net/http"

	"canaldir/internal/authz"
	"canaldir/internal/storage"
)

type adminMemberRequest struct {
	ID int64 `json:"id"`
}

type adminMemberResponse struct {
	ID     int64  `json:"id"`
	Detail string `json:"detail"`
}

// Admins serves admin-set management. Listing is public; add and remove
// require the developer role and identify the acting developer through the
// user_id query parameter. The same handler backs /admins and the legacy
// /dev/admins alias.
func (h *Handler) Admins(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		admins, err := h.Store.ListAdmins(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, admins)
	case http.MethodPost:
		actorID, ok := h.requireDeveloperActor(w, r, "add_admin")
		if !ok {
			return
		}
		var req adminMemberRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.ID <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("id must be a positive integer"))
			return
		}
		if err := h.Store.AddAdmin(r.Context(), req.ID); err != nil {
			if errors.Is(err, storage.ErrAdminExists) {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeStoreError(w, err)
			return
		}
		h.logger().Info("admin added", "actor_id", actorID, "admin_id", req.ID)
		writeJSON(w, http.StatusOK, adminMemberResponse{ID: req.ID, Detail: "admin added"})
	case http.MethodDelete:
		actorID, ok := h.requireDeveloperActor(w, r, "remove_admin")
		if !ok {
			return
		}
		var req adminMemberRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.ID <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("id must be a positive integer"))
			return
		}
		// The configured developer keeps access regardless of the admin
		// table; allowing the row removal would only feign a revocation.
		if devID := h.Policy.DeveloperID(); devID != 0 && req.ID == devID {
			writeError(w, http.StatusForbidden, fmt.Errorf("the configured developer cannot be removed"))
			return
		}
		if err := h.Store.RemoveAdmin(r.Context(), req.ID); err != nil {
			if errors.Is(err, storage.ErrAdminNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeStoreError(w, err)
			return
		}
		h.logger().Info("admin removed", "actor_id", actorID, "admin_id", req.ID)
		writeJSON(w, http.StatusOK, adminMemberResponse{ID: req.ID, Detail: "admin removed"})
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) requireDeveloperActor(w http.ResponseWriter, r *http.Request, operation string) (int64, bool) {
	actorID, err := actorFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return 0, false
	}
	if !h.authorize(w, r, actorID, authz.ManageAdmins, operation) {
		return 0, false
	}
	return actorID, true
}
