package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"canaldir/internal/authz"
)

// maxUploadBytes bounds a single image payload. The directory stores
// channel logos, not media files.
const maxUploadBytes = 10 << 20

var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var allowedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

type uploadResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func (h *Handler) slots() *semaphore.Weighted {
	h.uploadSlotsOnce.Do(func() {
		limit := h.UploadConcurrency
		if limit <= 0 {
			limit = 4
		}
		h.uploadSlots = semaphore.NewWeighted(limit)
	})
	return h.uploadSlots
}

// Upload stores a channel image in the blob bucket and returns its public
// URL. Requires channel-management authorization: an uploaded image is a
// write to shared storage. Payloads are held in memory while the blob PUT
// runs, so concurrent uploads are bounded.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	actorID, err := actorFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !h.authorize(w, r, actorID, authz.ManageChannels, "upload_image") {
		return
	}
	if !h.Blob.Enabled() {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("object storage is not configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("multipart payload is required"))
		return
	}
	part, err := nextFilePart(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer part.Close()

	filename := sanitizeFilename(part.FileName())
	contentType := strings.ToLower(strings.TrimSpace(part.Header.Get("Content-Type")))
	if err := validateImageKind(filename, contentType); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.slots().Acquire(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("upload capacity unavailable"))
		return
	}
	defer h.slots().Release(1)

	content, err := io.ReadAll(part)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	if len(content) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("uploaded file is empty"))
		return
	}

	key := fmt.Sprintf("channels/%d_%s", time.Now().Unix(), filename)
	object, err := h.Blob.Upload(r.Context(), key, contentType, content)
	if err != nil {
		h.logger().Error("image upload failed", "actor_id", actorID, "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("store image: %w", err))
		return
	}

	h.recorder().ObserveUpload(len(content))
	h.logger().Info("image uploaded", "actor_id", actorID, "key", object.Key, "size_bytes", len(content))
	writeJSON(w, http.StatusOK, uploadResponse{URL: object.URL, Key: object.Key})
}

func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("file field is required")
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart data: %w", err)
		}
		if part.FormName() == "file" {
			return part, nil
		}
		_ = part.Close()
	}
}

func validateImageKind(filename, contentType string) error {
	if contentType != "" {
		if _, ok := allowedImageTypes[contentType]; ok {
			return nil
		}
	}
	if allowedImageExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil
	}
	return fmt.Errorf("unsupported image format; accepted types are png, jpeg, gif, webp")
}

// sanitizeFilename strips path components and characters that have no
// business in an object key.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "image"
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" {
		return "image"
	}
	return cleaned
}
