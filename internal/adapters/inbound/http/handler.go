// handler.go provides the anchor REST API.
//
//   - GET /v1/anchors/{vbkHash}: last Bitcoin block known at a VeriBlock block
//   - GET /v1/anchors?limit=N:   recently recorded anchors, newest first
//   - GET /v1/node/ping:         NodeCore reachability
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/archon-research/vbk-watch/internal/ports/inbound"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// Handler implements HTTP handlers for the anchor API.
type Handler struct {
	service inbound.AnchorService
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler with the given service.
func NewHandler(service inbound.AnchorService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger.With("component", "anchor-handler"),
	}
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/anchors/{vbkHash}", h.GetAnchor)
	mux.HandleFunc("GET /v1/anchors", h.ListAnchors)
	mux.HandleFunc("GET /v1/node/ping", h.Ping)
}

// GetAnchor resolves the anchor for the path's VeriBlock hash.
func (h *Handler) GetAnchor(w http.ResponseWriter, r *http.Request) {
	vbkHash := r.PathValue("vbkHash")

	anchor, err := h.service.LookupAnchor(r.Context(), vbkHash)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("anchor lookup failed", "vbkHash", vbkHash, "error", err)
		}
		h.respondError(w, status, err.Error())
		return
	}
	respondJSON(w, h.logger, http.StatusOK, anchor)
}

// ListAnchors returns recently recorded anchors.
func (h *Handler) ListAnchors(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			h.respondError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxListLimit))
			return
		}
		limit = n
	}

	anchors, err := h.service.ListRecentAnchors(r.Context(), limit)
	if err != nil {
		if errors.Is(err, inbound.ErrHistoryUnavailable) {
			h.respondError(w, http.StatusNotImplemented, err.Error())
			return
		}
		h.logger.Error("failed to list anchors", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list anchors")
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{"anchors": anchors})
}

// Ping reports whether NodeCore is reachable.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "nodecore unreachable")
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// statusForError maps lookup errors to HTTP status codes. Anything not caused
// by the request is treated as an upstream NodeCore failure.
func statusForError(err error) int {
	switch {
	case errors.Is(err, inbound.ErrInvalidHash):
		return http.StatusBadRequest
	case errors.Is(err, inbound.ErrAnchorNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, h.logger, status, map[string]string{"error": message})
}
