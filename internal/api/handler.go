// Package api provides the shared HTTP handlers of the AskHR tools server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ashureev/askhr/internal/docs"
	"github.com/ashureev/askhr/internal/domain"
	"github.com/ashureev/askhr/internal/store"
	"github.com/go-chi/chi/v5"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// CredentialPeeker reports the held Workday credential without starting a flow.
type CredentialPeeker interface {
	Peek() (*domain.CredentialRecord, bool)
}

// Handler serves health checks and generated document downloads.
type Handler struct {
	ledger  store.Ledger
	creds   CredentialPeeker
	docs    *docs.Cache
	timeout time.Duration
}

// NewHandler creates a Handler.
func NewHandler(ledger store.Ledger, creds CredentialPeeker, cache *docs.Cache, healthTimeout time.Duration) *Handler {
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}
	return &Handler{ledger: ledger, creds: creds, docs: cache, timeout: healthTimeout}
}

// RegisterRoutes mounts the handler's routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/download/{key}", h.Download)
	r.Get("/download_doc/{key}", h.Download)
}

// Health reports ledger connectivity and whether a credential is held.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{"status": "ok"}

	if err := h.ledger.Ping(ctx); err != nil {
		slog.Warn("Health check: ledger unavailable", "error", err)
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = "unavailable"
	} else {
		body["database"] = "ok"
	}

	if rec, ok := h.creds.Peek(); ok {
		body["credential"] = "fresh"
		body["credential_expires_at"] = rec.ExpiresAt().UTC().Format(time.RFC3339)
	} else {
		body["credential"] = "absent"
	}

	JSON(w, status, body)
}

// Download serves a cached document as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	data, ok := h.docs.Get(key)
	if !ok {
		if unescaped, err := url.PathUnescape(key); err == nil && unescaped != key {
			key = unescaped
			data, ok = h.docs.Get(key)
		}
	}
	if !ok {
		Error(w, http.StatusNotFound, "document not found or expired")
		return
	}

	filename, _ := h.docs.Filename(key)
	w.Header().Set("Content-Type", h.docs.MimeType(key))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Debug("Document download interrupted", "key", key, "error", err)
	}
}
