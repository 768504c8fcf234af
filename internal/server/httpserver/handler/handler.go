package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/infra/fileops"
	"github.com/yndnr/redolog-go/internal/storage/recovery"
	"github.com/yndnr/redolog-go/internal/storage/wal"
	"github.com/yndnr/redolog-go/internal/telemetry/logger"
)

// Engine is what the handlers report on and act upon.
type Engine interface {
	Status() wal.Status
	Recovered() recovery.Result
	Draining() bool
	FileStats() fileops.Stats
	Checkpoint(ctx context.Context) (wal.CompactResult, error)
}

// Handler routes requests to the endpoint handlers.
type Handler struct {
	engine Engine
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a new Handler over engine.
func New(engine Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		engine: engine,
		logger: log,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /v1/wal/status", h.handleWALStatus)
	h.mux.HandleFunc("POST /v1/wal/checkpoint", h.handleCheckpoint)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// getRequestID returns the request ID set by the RequestID middleware.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts engine errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		h.writeError(w, r, errorCodeToHTTPStatus(code), code, err.Error(), nil)
		return
	}

	h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	h.writeError(w, r, http.StatusInternalServerError, "RL-SYS-5000", err.Error(), nil)
}

// errorCodeToHTTPStatus maps the status class of a domain error code
// onto the statuses the API uses.
func errorCodeToHTTPStatus(code string) int {
	switch c := domain.StatusClass(code); c {
	case http.StatusGone:
		return http.StatusConflict
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict,
		http.StatusLocked, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return c
	default:
		return http.StatusInternalServerError
	}
}
