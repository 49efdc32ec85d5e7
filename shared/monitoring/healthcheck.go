package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trend-stack/shared/logging"
)

// HealthServer serves /health, /status and /metrics plus any routes the
// agent mounts (the read API).
type HealthServer struct {
	monitor *Monitor
	port    string
	router  chi.Router
	server  *http.Server
}

func NewHealthServer(monitor *Monitor, port string) *HealthServer {
	if port == "" {
		port = "8080"
	}

	h := &HealthServer{
		monitor: monitor,
		port:    port,
		router:  chi.NewRouter(),
	}
	h.router.Use(chimiddleware.RealIP)
	h.router.Use(chimiddleware.Recoverer)
	h.router.Get("/health", h.healthHandler)
	h.router.Get("/status", h.statusHandler)
	h.router.Handle("/metrics", promhttp.Handler())
	return h
}

// Route mounts additional routes on the server before it starts.
func (h *HealthServer) Route(pattern string, fn func(r chi.Router)) {
	h.router.Route(pattern, fn)
}

// Handler exposes the router, mostly for tests.
func (h *HealthServer) Handler() http.Handler {
	return h.router
}

func (h *HealthServer) Start() {
	h.server = &http.Server{
		Addr:              ":" + h.port,
		Handler:           h.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info().Str("port", h.port).Msg("Health check server starting")
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("Health server error")
		}
	}()
}

func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if h.monitor.IsHealthy() {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK - %s", h.monitor.GetStatusSummary())
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "Service unhealthy - %s", h.monitor.GetStatusSummary())
	}
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s", h.monitor.GetStatusSummary())
}
