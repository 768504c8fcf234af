package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /healthz.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.engine.Status().Err; err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		h.writeJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}
