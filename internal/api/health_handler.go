package api

import (
	"net/http"

	"github.com/sungwon/mpmail/internal/provider"
)

// HealthzHandler handles GET /healthz. It always returns 200.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type readinessResponse struct {
	Status     string                           `json:"status"`
	Components map[string]provider.HealthStatus `json:"components,omitempty"`
}

// ReadyzHandler handles GET /readyz from the cached results of hc.
// It returns 503 with Retry-After while any component is unhealthy.
func ReadyzHandler(hc *provider.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hc == nil {
			respondJSON(w, http.StatusOK, readinessResponse{Status: "ok"})
			return
		}
		ready, statuses := hc.Ready()
		if !ready {
			w.Header().Set("Retry-After", "30")
			respondJSON(w, http.StatusServiceUnavailable, readinessResponse{Status: "unavailable", Components: statuses})
			return
		}
		respondJSON(w, http.StatusOK, readinessResponse{Status: "ok", Components: statuses})
	}
}
