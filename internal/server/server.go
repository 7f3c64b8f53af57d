package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/server/middleware"
	"github.com/alanyoungcy/crossarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client per RateWindow. Zero disables
	// rate limiting even when a limiter is supplied.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Book          *handler.BookHandler
	Opportunities *handler.OpportunitiesHandler
	Status        *handler.StatusHandler
	Archive       *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API server for the arbitrage
// engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches
// the WebSocket hub. limiter may be nil, which disables rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check and Prometheus metrics (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Consolidated book endpoints.
	mux.HandleFunc("GET /api/book", handlers.Book.GetBook)
	mux.HandleFunc("GET /api/book/{exchange}", handlers.Book.GetVenue)

	// Opportunity endpoints.
	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListRecent)
	mux.HandleFunc("GET /api/opportunities/history", handlers.Opportunities.History)

	// Engine status endpoint.
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Archive endpoints.
	mux.HandleFunc("GET /api/archive", handlers.Archive.ListFiles)
	mux.HandleFunc("POST /api/archive/run", handlers.Archive.Run)

	// WebSocket endpoint. Exempt from auth because browser WebSocket
	// clients cannot set request headers.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics", "/ws")(h)

	// Apply rate limiting when a limiter is configured.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
