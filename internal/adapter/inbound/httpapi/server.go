// Package httpapi provides the HTTP transport adapter for the gateway.
// MCP clients POST JSON-RPC messages to /mcp; /healthz and /metrics
// serve operational endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medicos-health/medigate/internal/domain/auth"
	"github.com/medicos-health/medigate/internal/service"
)

// maxBodySize caps a single inbound request body.
const maxBodySize = 1024 * 1024 // 1MB

// Server is the inbound adapter that connects the gateway to HTTP
// clients. Every request must carry a valid X-API-Key; the resolved
// identity becomes the caller on each dispatched tool call.
type Server struct {
	gateway  *service.Gateway
	resolver *auth.Resolver
	server   *http.Server
	addr     string
	registry *prometheus.Registry
	logger   *slog.Logger
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address. Default is "127.0.0.1:8080".
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithMetricsRegistry sets the Prometheus registry served at /metrics.
// When unset, a fresh registry with Go and process collectors is used.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// NewServer creates an HTTP server wrapping the given gateway.
func NewServer(gateway *service.Gateway, resolver *auth.Resolver, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		gateway:  gateway,
		resolver: resolver,
		addr:     "127.0.0.1:8080",
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return s
}

// Registry returns the Prometheus registry served at /metrics, so the
// caller can register gateway metrics against it.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler builds the HTTP handler tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry: s.registry,
	}))
	mux.HandleFunc("/mcp", s.handleMCP)
	return mux
}

// Start begins accepting connections. It blocks until the context is
// cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.Close()
	case err := <-errCh:
		return err
	}
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}
	s.logger.Info("HTTP server shutdown complete")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, err := s.resolver.Resolve(r.Header.Get("X-API-Key"))
	if err != nil {
		s.logger.Warn("rejected request with invalid api key", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxBodySize {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}

	resp := s.gateway.Handle(r.Context(), body, identity.ID)
	if resp == nil {
		// Notifications get no response body.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
