package handlers

import (
	"net/http"
	"time"

	"github.com/quietwire/quietwire/pkg/relay/store"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	store store.Store
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(s store.Store) *HealthHandler {
	return &HealthHandler{store: s}
}

type healthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Liveness handles GET /health. It answers as long as the process serves
// requests; it does not touch the database.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, healthStatus{Status: "healthy", Timestamp: time.Now().UTC()})
}

// Readiness handles GET /health/ready. It fails while the database is
// unreachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "database unreachable",
		})
		return
	}
	WriteSuccess(w, healthStatus{Status: "ready", Timestamp: time.Now().UTC()})
}
