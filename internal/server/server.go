// Package server exposes the link's status, reconstructed state and manual
// controls over HTTP, plus a WebSocket event stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/server/handler"
	"github.com/alanyoungcy/simlink/internal/server/middleware"
	"github.com/alanyoungcy/simlink/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// ControlLimit caps POST /api/reconnect and /api/disconnect per client
	// within ControlWindow. Zero disables the limit.
	ControlLimit  int
	ControlWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Journal is optional.
type Handlers struct {
	Health  *handler.HealthHandler
	Link    *handler.LinkHandler
	Journal *handler.JournalHandler
}

// Server is the headless HTTP + WebSocket API server for the link.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	control := func(h http.HandlerFunc) http.Handler {
		if limiter == nil || cfg.ControlLimit <= 0 {
			return h
		}
		return middleware.RateLimit(limiter, cfg.ControlLimit, cfg.ControlWindow, logger)(h)
	}

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Link status and state.
	mux.HandleFunc("GET /api/connection", handlers.Link.GetConnection)
	mux.HandleFunc("GET /api/state", handlers.Link.GetState)

	// Manual controls.
	mux.Handle("POST /api/reconnect", control(handlers.Link.Reconnect))
	mux.Handle("POST /api/disconnect", control(handlers.Link.Disconnect))

	// Journal and archive (full mode).
	if handlers.Journal != nil {
		mux.HandleFunc("GET /api/journal", handlers.Journal.ListJournal)
		mux.HandleFunc("GET /api/archive/latest", handlers.Journal.LatestArchive)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)

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
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

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
