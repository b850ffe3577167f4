// Package http serves the assessment form, the JSON API and the live scoring
// websocket.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"caserisk/assess"
	"caserisk/labels"
)

type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// DefaultServerConfig matches config.Default.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8501,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// CatalogSource yields the label catalog to render with. *labels.Store
// satisfies it, so a reload is visible on the next request.
type CatalogSource interface {
	Catalog() *labels.Catalog
}

// NewServer wires the handlers for service behind the middleware chain.
func NewServer(config ServerConfig, service *assess.Service, catalogs CatalogSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	NewHandler(service, catalogs, logger, config.MaxBodyBytes).Register(mux)

	chain := Chain(
		RecoveryMiddleware(logger), // outermost
		LoggerMiddleware(logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
		RequestSizeMiddleware(config.MaxBodyBytes),
	)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           chain(mux),
			ReadHeaderTimeout: config.Timeout,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// Handler exposes the fully wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens on the configured port and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting http server", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests, giving up after five seconds.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
