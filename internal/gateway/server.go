package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/cueso/internal/agent"
	"github.com/haasonsaas/cueso/internal/observability"
	"github.com/haasonsaas/cueso/internal/roku"
	"github.com/haasonsaas/cueso/internal/sessions"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Host to bind. Default: 0.0.0.0.
	Host string

	// Port to bind. Default: 8483.
	Port int

	// AllowedOrigins is the websocket origin allow-list. Empty admits
	// every origin.
	AllowedOrigins []string

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration
}

func sanitizeServerConfig(cfg ServerConfig) ServerConfig {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port <= 0 {
		cfg.Port = 8483
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg
}

// Server hosts the websocket chat bridge, the management API, and the
// metrics endpoint.
type Server struct {
	config ServerConfig
	http   *http.Server
	bridge *ChatBridge
	api    *APIHandler
	logger *observability.Logger
}

// NewServer wires the chat bridge and API onto one HTTP server.
func NewServer(cfg ServerConfig, store *sessions.Store, driver *agent.Driver, rokuClient *roku.Client) *Server {
	cfg = sanitizeServerConfig(cfg)

	bridge := NewChatBridge(store, driver, cfg.AllowedOrigins)
	api := NewAPIHandler(store, rokuClient)

	mux := http.NewServeMux()
	mux.Handle("/ws", bridge)
	mux.Handle("/metrics", promhttp.Handler())
	api.Register(mux)

	return &Server{
		config: cfg,
		http: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: mux,
			// No write timeout: websocket streams outlive any fixed
			// deadline. The bridge enforces its own write deadlines.
			ReadHeaderTimeout: 10 * time.Second,
		},
		bridge: bridge,
		api:    api,
		logger: observability.NewLogger(observability.LogConfig{}),
	}
}

// SetLogger replaces the server's logger and propagates it.
func (s *Server) SetLogger(logger *observability.Logger) {
	if logger == nil {
		return
	}
	s.logger = logger
	s.bridge.SetLogger(logger)
	s.api.SetLogger(logger)
}

// SetMetrics attaches a metrics recorder to the bridge.
func (s *Server) SetMetrics(metrics *observability.Metrics) {
	s.bridge.SetMetrics(metrics)
}

// Addr returns the configured bind address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info(ctx, "http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
