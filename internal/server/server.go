// Package server exposes the market over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oddsmith/poolmarket/internal/domain"
	"github.com/oddsmith/poolmarket/internal/server/handler"
	"github.com/oddsmith/poolmarket/internal/server/middleware"
	"github.com/oddsmith/poolmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// APIKey guards the admin routes (settle, cancel). Empty disables auth.
	APIKey string

	// WriteRateLimit caps POST requests per client IP per WriteRateWindow.
	// Zero disables rate limiting.
	WriteRateLimit  int
	WriteRateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Events   *handler.EventHandler
	Bets     *handler.BetHandler
	Klines   *handler.KlineHandler
	Balances *handler.BalanceHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes on a ServeMux and wires the middleware
// chain (logging, CORS, per-route auth and rate limiting).
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	admin := middleware.Auth(cfg.APIKey)
	window := cfg.WriteRateWindow
	if window <= 0 {
		window = time.Second
	}
	limited := middleware.RateLimit(limiter, cfg.WriteRateLimit, window)

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Event lifecycle.
	mux.Handle("POST /api/events", limited(http.HandlerFunc(handlers.Events.Create)))
	mux.HandleFunc("GET /api/events", handlers.Events.List)
	mux.HandleFunc("GET /api/events/{id}", handlers.Events.Get)

	// Admin routes.
	mux.Handle("POST /api/events/{id}/settle", admin(http.HandlerFunc(handlers.Events.Settle)))
	mux.Handle("POST /api/events/{id}/cancel", admin(http.HandlerFunc(handlers.Events.Cancel)))

	// Bets.
	mux.Handle("POST /api/events/{id}/bets", limited(http.HandlerFunc(handlers.Bets.Place)))
	mux.HandleFunc("GET /api/bets", handlers.Bets.List)

	// Odds history.
	mux.HandleFunc("GET /api/events/{id}/klines", handlers.Klines.History)

	// Balances.
	mux.HandleFunc("GET /api/users/{id}/balance", handlers.Balances.Get)

	// Live updates.
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
