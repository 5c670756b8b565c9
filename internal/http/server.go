package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/davidbz/roomgen/internal/config"
	"github.com/davidbz/roomgen/internal/http/middleware"
	"github.com/davidbz/roomgen/internal/metrics"
	"github.com/davidbz/roomgen/internal/observability"
	"github.com/davidbz/roomgen/internal/storage/filesystem"
)

const readHeaderTimeout = 10 * time.Second

// Server serves the generation API, cost administration, and stored images.
type Server struct {
	config      config.ServerConfig
	storage     *filesystem.Config
	handler     *Handler
	middlewares middleware.Middleware

	mu  sync.Mutex
	srv *http.Server
}

// NewServer creates a new HTTP server. storage may be nil when images are not
// served locally.
func NewServer(
	cfg *config.ServerConfig,
	storage *filesystem.Config,
	handler *Handler,
	middlewares middleware.Middleware,
) *Server {
	return &Server{
		config:      *cfg,
		storage:     storage,
		handler:     handler,
		middlewares: middlewares,
	}
}

// Routes returns the routed handler wrapped in the middleware chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/generations", s.handler.HandleGenerate)

	mux.HandleFunc("GET /v1/costs/limits", s.handler.HandleGetLimits)
	mux.HandleFunc("PUT /v1/costs/limits", s.handler.HandleSetLimits)
	mux.HandleFunc("GET /v1/costs/{userID}", s.handler.HandleGetCosts)
	mux.HandleFunc("DELETE /v1/costs/{userID}", s.handler.HandleResetCosts)

	mux.HandleFunc("GET /health", s.handler.HandleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	if prefix, ok := s.imagePrefix(); ok {
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(s.storage.Dir))))
	}

	return s.middlewares(mux)
}

// imagePrefix reports the mount point for persisted images. Absolute public
// URLs point at an external host, so nothing is mounted for them.
func (s *Server) imagePrefix() (string, bool) {
	if s.storage == nil || !strings.HasPrefix(s.storage.PublicBaseURL, "/") {
		return "", false
	}
	return strings.TrimSuffix(s.storage.PublicBaseURL, "/") + "/", true
}

// Start listens on the configured port and blocks until the server stops.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	observability.FromContext(context.Background()).Info("starting HTTP server",
		observability.String("addr", listener.Addr().String()),
	)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight generations until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	observability.FromContext(ctx).Info("shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
