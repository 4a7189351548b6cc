package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/server/handler"
	"github.com/alanyoungcy/polyoracle/internal/server/middleware"
	"github.com/alanyoungcy/polyoracle/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
	// WriteTimeout must exceed the longest resolve; zero derives it from
	// the resolve timeout.
	WriteTimeout time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Index   *handler.IndexHandler
	Health  *handler.HealthHandler
	Resolve *handler.ResolveHandler
	Results *handler.ResultHandler
}

// Server is the HTTP + WebSocket front door of the resolution service.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// The limiter may be nil, in which case rate limiting is per process.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	if handlers.Index != nil {
		mux.HandleFunc("GET /{$}", handlers.Index.Index)
	}
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	if handlers.Resolve != nil {
		mux.HandleFunc("POST /api/resolve", handlers.Resolve.Resolve)
		mux.HandleFunc("POST /api/resolve/batch", handlers.Resolve.ResolveBatch)
		mux.HandleFunc("POST /api/resolve/execute", handlers.Resolve.Execute)
		mux.HandleFunc("POST /api/resolve/{venue}/{id}", handlers.Resolve.ResolveFromSource)
	}

	if handlers.Results != nil {
		mux.HandleFunc("GET /api/results", handlers.Results.ListResults)
		mux.HandleFunc("GET /api/results/{marketId}", handlers.Results.GetResult)
		mux.HandleFunc("GET /api/results/{marketId}/archives", handlers.Results.ListArchives)
		mux.HandleFunc("GET /api/results/{marketId}/archives/{runId}", handlers.Results.GetArchive)
		mux.HandleFunc("POST /api/verify", handlers.Results.Verify)
		mux.HandleFunc("GET /api/audit", handlers.Results.ListAudit)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Outermost first: CORS, logging, rate limit, auth.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/", "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 6 * time.Minute
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
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
