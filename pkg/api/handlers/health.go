package handlers

import (
	"net/http"
	"os"
	"time"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	svc     *Services
	version string
}

// NewHealthHandler creates the health probe handler.
func NewHealthHandler(svc *Services, version string) *HealthHandler {
	return &HealthHandler{svc: svc, version: version}
}

// healthResponse is the probe response shape.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Liveness handles GET /health. It answers healthy as long as the process
// serves requests.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// Readiness handles GET /health/ready. The server is ready once the storage
// root is reachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(h.svc.Store.Layout().StoresRoot()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Error:     "storage root unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}
