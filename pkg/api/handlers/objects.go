package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quarryfs/quarry/internal/logger"
	"github.com/quarryfs/quarry/pkg/service"
)

// streamChunk is how many bytes each ReadAt call moves when streaming
// an object body.
const streamChunk = 256 << 10

// ObjectsHandler handles object management endpoints.
//
// Object keys may contain slashes, so single-object routes match the
// key as a trailing wildcard rather than a single path segment.
type ObjectsHandler struct {
	svc *service.Service
}

// NewObjectsHandler creates a new objects handler.
func NewObjectsHandler(svc *service.Service) *ObjectsHandler {
	return &ObjectsHandler{svc: svc}
}

// objectKey extracts the object key from the trailing wildcard of the
// matched route, undoing any percent-encoding the client applied.
func objectKey(r *http.Request) string {
	key := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	return key
}

// List handles GET /objects - every indexed object.
func (h *ObjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.List(r.Context())
	if err != nil {
		internalError(w, "failed to list objects")
		return
	}

	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"count":   len(entries),
		"objects": entries,
	}))
}

// Get handles GET /objects/{key}.
//
// Without query parameters it returns the index entry for the object.
// With ?stream=1 it opens the object and streams its bytes through the
// cache, which is also how a cold object gets admitted.
func (h *ObjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if key == "" {
		badRequest(w, "missing object key")
		return
	}

	if r.URL.Query().Get("stream") == "1" {
		h.stream(w, r, key)
		return
	}

	entry, err := h.svc.Describe(r.Context(), key)
	switch {
	case errors.Is(err, service.ErrNotFound):
		notFound(w, "object not cached")
	case err != nil:
		internalError(w, "failed to look up object")
	default:
		writeJSON(w, http.StatusOK, okResponse(entry))
	}
}

// stream writes the object body as application/octet-stream.
func (h *ObjectsHandler) stream(w http.ResponseWriter, r *http.Request, key string) {
	info, err := h.svc.Open(r.Context(), key)
	if errors.Is(err, service.ErrNotFound) {
		notFound(w, "object not found at origin")
		return
	}
	if err != nil {
		internalError(w, "failed to open object")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, streamChunk)
	var off int64
	for off < info.Size {
		n, err := h.svc.ReadAt(r.Context(), key, buf, off)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// Client went away.
				return
			}
			off += int64(n)
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			// Headers are already out; the truncated body is the
			// only signal the client gets.
			logger.Warn("Object stream aborted",
				logger.KeyObject, key,
				logger.KeyOffset, off,
				logger.KeyError, err)
			return
		}
	}
}

// Remove handles DELETE /objects/{key} - drop the object from the
// cache entirely (backing file, index entry, quota charge).
func (h *ObjectsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if key == "" {
		badRequest(w, "missing object key")
		return
	}

	err := h.svc.Remove(r.Context(), key)
	switch {
	case errors.Is(err, service.ErrNotFound):
		notFound(w, "object not cached")
	case err != nil:
		internalError(w, "failed to remove object")
	default:
		writeJSON(w, http.StatusOK, okResponse(map[string]string{
			"removed": key,
		}))
	}
}

// Invalidate handles POST /objects/invalidate/{key} - drop the cached
// bytes but keep the object known, so the next read repopulates it.
func (h *ObjectsHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if key == "" {
		badRequest(w, "missing object key")
		return
	}

	err := h.svc.Invalidate(r.Context(), key)
	switch {
	case errors.Is(err, service.ErrNotFound):
		notFound(w, "object not cached")
	case err != nil:
		internalError(w, "failed to invalidate object")
	default:
		writeJSON(w, http.StatusOK, okResponse(map[string]string{
			"invalidated": key,
		}))
	}
}
