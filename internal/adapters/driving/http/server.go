package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/nexus/internal/core/ports/driven"
	"github.com/custodia-labs/nexus/internal/core/ports/driving"
	"github.com/custodia-labs/nexus/internal/runtime"
)

// ReadinessChecker reports whether stateful dependencies are reachable
type ReadinessChecker interface {
	Ready(ctx context.Context) ([]runtime.CheckResult, bool)
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	maxBodyBytes int64
	queryTimeout time.Duration
	readyTimeout time.Duration

	// Services
	catalog   driving.CatalogService
	query     driving.QueryService
	ingestion driving.IngestionService
	slack     driving.SlackService

	// Infrastructure
	tokens    driven.TokenService
	readiness ReadinessChecker
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// MaxBodyBytes caps every request body
	MaxBodyBytes int64
	QueryTimeout time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RateLimit is requests per second per client IP; zero disables it
	RateLimit         float64
	RateBurst         int
	TrustProxyHeaders bool

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		Version:      "dev",
		MaxBodyBytes: 1 << 20,
		QueryTimeout: 60 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
		RateLimit:    5,
		RateBurst:    20,
	}
}

// Services are the driving ports the server exposes. Tokens may be nil to
// serve the API without authentication.
type Services struct {
	Catalog   driving.CatalogService
	Query     driving.QueryService
	Ingestion driving.IngestionService
	Slack     driving.SlackService
	Tokens    driven.TokenService
	Readiness ReadinessChecker
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, svc Services) *Server {
	defaults := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaults.QueryTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		router:       http.NewServeMux(),
		version:      cfg.Version,
		logger:       cfg.Logger,
		maxBodyBytes: cfg.MaxBodyBytes,
		queryTimeout: cfg.QueryTimeout,
		readyTimeout: 5 * time.Second,
		catalog:      svc.Catalog,
		query:        svc.Query,
		ingestion:    svc.Ingestion,
		slack:        svc.Slack,
		tokens:       svc.Tokens,
		readiness:    svc.Readiness,
	}

	s.setupRoutes(NewRateLimitMiddleware(cfg.RateLimit, cfg.RateBurst, cfg.TrustProxyHeaders))

	var handler http.Handler = s.router
	handler = NewLoggingMiddleware(cfg.Logger).Handler(handler)
	handler = NewRecoveryMiddleware(cfg.Logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return s
}

// Handler returns the fully wrapped handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(limit *RateLimitMiddleware) {
	auth := NewAuthMiddleware(s.tokens)

	// Health endpoints (no auth, no rate limit)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.Handle("GET /metrics", promhttp.Handler())

	// API endpoints
	s.router.Handle("GET /documents", limit.Handler(auth.Authenticate(http.HandlerFunc(s.handleListDocuments))))
	s.router.Handle("POST /documents", limit.Handler(auth.Authenticate(http.HandlerFunc(s.handleSubmitDocument))))
	s.router.Handle("POST /query", limit.Handler(auth.Authenticate(http.HandlerFunc(s.handleQuery))))

	// Slack signs its requests; bearer tokens do not apply
	s.router.Handle("POST /slack", limit.Handler(http.HandlerFunc(s.handleSlack)))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
