package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/betawatch/betawatch/internal/breaker"
	"github.com/betawatch/betawatch/internal/metrics"
	"github.com/betawatch/betawatch/internal/ratelimit"
	"github.com/betawatch/betawatch/internal/store"
)

// shutdownTimeout bounds graceful shutdown after context cancellation.
const shutdownTimeout = 5 * time.Second

// Server handles HTTP requests for the betawatch API.
//
// Server provides four endpoints:
//   - GET /healthz: Liveness probe
//   - GET /api/status: All monitored key statuses as JSON
//   - GET /api/status/{key}: One key's status
//   - GET /api/metrics: Operational counters plus limiter and breaker state
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	collector  *metrics.Collector
	limiter    *ratelimit.Limiter
	breaker    *breaker.Breaker
	port       int
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, collector *metrics.Collector, limiter *ratelimit.Limiter, brk *breaker.Breaker, port int, logger *slog.Logger) *Server {
	return &Server{
		store:     st,
		collector: collector,
		limiter:   limiter,
		breaker:   brk,
		port:      port,
		logger:    logger,
	}
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server runs until the context is cancelled, at which
// point it initiates a graceful shutdown with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/status/{key}", s.handleKeyStatus)
	r.Get("/api/metrics", s.handleMetrics)

	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: r,
		// BaseContext derives all request contexts from the server context
		// so cancellation reaches in-flight handlers on shutdown.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// healthzResponse is the liveness probe body.
type healthzResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// metricsResponse aggregates operational state for /api/metrics.
type metricsResponse struct {
	Checks    metrics.Snapshot `json:"checks"`
	RateLimit ratelimit.Stats  `json:"rate_limit"`
	Breaker   breaker.Snapshot `json:"circuit_breaker"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.collector.Snapshot()
	s.writeJSON(w, healthzResponse{
		Status: "ok",
		Uptime: time.Since(snap.StartTime).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, s.store.GetAll())
}

func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	status, ok := s.store.Get(key)
	if !ok {
		http.Error(w, "unknown key", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, status)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, metricsResponse{
		Checks:    s.collector.Snapshot(),
		RateLimit: s.limiter.Stats(),
		Breaker:   s.breaker.Snapshot(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
