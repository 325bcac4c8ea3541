// Package server exposes flight log analysis over HTTP: multipart log
// upload, a conversational analysis endpoint backed by the agent package,
// session lifecycle management and Prometheus instrumentation.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/surya-garg/UAVLogViewer/internal/agent"
	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

// Default configuration values.
const (
	DefaultMaxUploadBytes = 100 << 20
	DefaultSessionTTL     = time.Hour
)

// IngestFunc turns a spooled upload into an analysed log.
type IngestFunc func(path string) (*flight.Log, error)

// AgentFactory builds a conversation agent for a freshly ingested log.
type AgentFactory func(log *flight.Log) *agent.Agent

// Config carries the server's runtime parameters.
type Config struct {
	// UploadDir is where uploads are spooled before decoding.
	UploadDir string

	// MaxUploadBytes caps the accepted upload size.
	MaxUploadBytes int64

	// Origins lists allowed CORS origins. "*" allows any.
	Origins []string

	// SessionTTL is how long an idle session survives. <= 0 disables expiry.
	SessionTTL time.Duration

	// Model is the LLM model name reported by the health endpoint.
	Model string
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.UploadDir == "" {
		return errors.New("upload directory is required")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload size must be positive")
	}
	return nil
}

// Server routes and handles the HTTP API.
type Server struct {
	cfg      Config
	sessions *Manager
	ingest   IngestFunc
	newAgent AgentFactory
	metrics  *Metrics
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the base logger. Server components derive their own
// scopes from it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics substitutes a pre-built metrics set.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a Server. The ingest function and agent factory keep the
// transport layer free of decoder and LLM wiring.
func New(cfg Config, ingest IngestFunc, newAgent AgentFactory, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	s := &Server{
		cfg:      cfg,
		ingest:   ingest,
		newAgent: newAgent,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.sessions = NewManager(cfg.SessionTTL, s.logger)
	s.metrics.TrackSessions(s.sessions.Count)
	s.logger = s.logger.With(slog.String("component", "server"))
	return s, nil
}

// Sessions exposes the session manager, mainly so the caller can run its
// Janitor.
func (s *Server) Sessions() *Manager { return s.sessions }

// Handler returns the routed HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/session/{id}", s.handleSessionInfo)
	mux.HandleFunc("POST /api/session/{id}/reset", s.handleSessionReset)
	mux.HandleFunc("DELETE /api/session/{id}", s.handleSessionDelete)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return s.cors(mux)
}
