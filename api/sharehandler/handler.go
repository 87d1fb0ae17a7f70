// Package sharehandler exposes the retained-share store over HTTP:
//   - PUT    /api/shares/{key} - store a share (api.ShareRequest)
//   - GET    /api/shares/{key} - fetch a share
//   - DELETE /api/shares/{key} - delete a share
//   - GET    /api/shares - list keys
package sharehandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/heirloom/api"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/storage"
)

type Handler struct {
	store *storage.ShareStore
	log   *slog.Logger
}

func NewHandler(store *storage.ShareStore, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/shares", h.HandleList)
	r.Put("/api/shares/{key}", h.HandlePut)
	r.Get("/api/shares/{key}", h.HandleGet)
	r.Delete("/api/shares/{key}", h.HandleDelete)
}

func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req api.ShareRequest
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.Put(r.Context(), key, req.Share); err != nil {
		h.fail(w, "Failed to store share", key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	share, err := h.store.Get(r.Context(), key)
	if err != nil {
		h.fail(w, "Failed to load share", key, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.ShareResponse{Key: key, Share: share}); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.store.Delete(r.Context(), key); err != nil {
		h.fail(w, "Failed to delete share", key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListKeys(r.Context())
	if err != nil {
		h.fail(w, "Failed to list shares", "", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.ShareListResponse{Keys: keys}); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, msg, key string, err error) {
	switch {
	case errors.Is(err, interfaces.ErrInvalidShareFormat), errors.Is(err, interfaces.ErrInvalidKey):
		http.Error(w, msg+": "+err.Error(), http.StatusBadRequest)
	case errors.Is(err, interfaces.ErrContentNotFound):
		http.Error(w, "Share not found", http.StatusNotFound)
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		h.log.Warn(msg, slog.String("key", key), "err", err)
		http.Error(w, "Share store unavailable", http.StatusServiceUnavailable)
	default:
		h.log.Error(msg, slog.String("key", key), "err", err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
