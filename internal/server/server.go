// Package server hosts the HTTP router and the middleware chain shared by
// every endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/rag-chat-proxy/internal/auth"
)

// Config controls the middleware chain.
type Config struct {
	Port       int
	Timeout    time.Duration
	CORSOrigin string
	// Keys enables bearer auth when it holds at least one key.
	Keys *auth.KeySet
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Server wraps the chi router and its listener.
type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	http   *http.Server
}

// New builds the router. Middleware order: request id, logging, CORS, auth,
// rate limit, timeout, recoverer, tracing.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware(cfg.CORSOrigin))

	if cfg.Keys.Len() > 0 {
		r.Use(AuthMiddleware(cfg.Keys))
	}
	if cfg.RateLimit > 0 {
		r.Use(RateLimitMiddleware(NewClientLimiter(cfg.RateLimit, cfg.RateBurst)))
	}

	r.Use(TimeoutMiddleware(cfg.Timeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "rag-chat-proxy")
	})

	return &Server{
		Router: r,
		Port:   cfg.Port,
		logger: logger,
		http: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handle registers h for method and path.
func (s *Server) Handle(method, path string, h http.HandlerFunc) {
	s.Router.MethodFunc(method, path, h)
}

// HandleAll registers h for every method on path; the handler does its own
// method checks.
func (s *Server) HandleAll(path string, h http.Handler) {
	s.Router.Handle(path, h)
}

// Start listens on the configured port and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.Port, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after a clean Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server", slog.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.http.Shutdown(ctx)
}
