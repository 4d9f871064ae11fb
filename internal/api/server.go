// Package api implements the HTTP surface of the order service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hiberry/internal/auth"
	"hiberry/internal/buildinfo"
	"hiberry/internal/events"
	"hiberry/internal/integrations"
	"hiberry/internal/metrics"
	"hiberry/internal/orders"
)

// Pinger reports storage readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Orders *orders.Service
	Auth   *auth.Verifier
	Broker events.Broker
	Store  Pinger
	Logger *zap.Logger

	// Integrations are the order webhooks by adapter name.
	Integrations map[string]integrations.SourceAdapter
}

func NewServer(svc *orders.Service, v *auth.Verifier, b events.Broker, p Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if v == nil {
		v = auth.NewVerifier(auth.ModeDev, "")
	}
	return &Server{Orders: svc, Auth: v, Broker: b, Store: p, Logger: logger, Integrations: map[string]integrations.SourceAdapter{}}
}

// AddIntegration mounts an order webhook under /v1/integrations/{name}/orders.
func (s *Server) AddIntegration(a integrations.SourceAdapter) {
	s.Integrations[a.Name()] = a
}

// Routes returns the service mux wrapped in the access log and metrics
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/orders", s.OrdersHandler)
	mux.HandleFunc("/v1/schedule", s.ScheduleHandler)
	mux.HandleFunc("/v1/schedule/manifest", s.ManifestHandler)
	mux.HandleFunc("/v1/events/ws", s.EventsWSHandler)
	mux.HandleFunc("/v1/integrations/", s.IntegrationHandler)

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return s.logMiddleware(mux)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := s.Store.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
