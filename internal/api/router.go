// Package api exposes the mailer over HTTP: the queue drain endpoint, the
// send endpoint, health probes and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mpmail/internal/auth"
	"github.com/sungwon/mpmail/internal/metrics"
	"github.com/sungwon/mpmail/internal/provider"
)

// RouterConfig holds the dependencies of NewRouter.
type RouterConfig struct {
	Log            zerolog.Logger
	Drainer        Drainer
	DrainGate      *auth.TokenGate
	Sender         Sender // optional; /api/v1/messages is not mounted without it
	SendGate       *auth.TokenGate
	Health         *provider.HealthChecker
	RequestTimeout time.Duration
}

// NewRouter creates a chi.Mux with all routes and middleware configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(RecoverMiddleware(cfg.Log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(cfg.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.With(auth.RequireBearer(cfg.DrainGate, rejectUnauthorized)).
			Post("/queue/drain", DrainHandler(cfg.Drainer))

		if cfg.Sender != nil {
			r.With(auth.RequireBearer(cfg.SendGate, rejectUnauthorized)).
				Post("/api/v1/messages", SendMessageHandler(cfg.Sender))
		}
	})

	return r
}

func rejectUnauthorized(w http.ResponseWriter, _ *http.Request, reason string) {
	metrics.APIAuthFailuresTotal.Inc()
	w.Header().Set("WWW-Authenticate", `Bearer realm="mpmail"`)
	respondErrorMessage(w, http.StatusUnauthorized, "unauthorized", reason)
}
