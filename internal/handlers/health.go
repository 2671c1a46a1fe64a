package handlers

import (
	"net/http"
	"time"

	"walink/internal/storage"
)

// HealthHandler reports service liveness and database health
type HealthHandler struct {
	db      *storage.Database
	version string
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *storage.Database, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version, started: time.Now()}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "ok"
	code := http.StatusOK

	if err := h.db.Health(r.Context()); err != nil {
		status = "degraded"
		dbStatus = err.Error()
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":   status,
		"database": dbStatus,
		"version":  h.version,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}
