// Package server exposes the agent over HTTP: one chat route, a health
// probe, and the Prometheus scrape endpoint. The server is a thin shell;
// everything interesting happens in pkg/agent.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/periplo-ai/periplo/pkg/agent"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8080

	// DefaultMaxRequestTimeout caps what a client may ask for via the
	// Request-Timeout header.
	DefaultMaxRequestTimeout = 60 * time.Second

	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP listener settings.
type Config struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// MaxRequestTimeout is the ceiling applied to the Request-Timeout
	// header. Requests without the header run on the agent's own clock.
	MaxRequestTimeout time.Duration `yaml:"max_request_timeout" json:"max_request_timeout"`

	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.MaxRequestTimeout <= 0 {
		c.MaxRequestTimeout = DefaultMaxRequestTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		// Must outlast the longest permitted request deadline.
		c.WriteTimeout = c.MaxRequestTimeout + 15*time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Chat answers one utterance. *agent.Agent implements it.
type Chat interface {
	Handle(ctx context.Context, req agent.Request) (*agent.Reply, error)
}

// Server serves the chat API.
type Server struct {
	cfg  Config
	chat Chat
	http *http.Server

	addr net.Addr
}

// New builds a server over the chat backend.
func New(cfg Config, chat Chat) (*Server, error) {
	if chat == nil {
		return nil, errors.New("server: chat backend is required")
	}
	cfg.SetDefaults()

	s := &Server{cfg: cfg, chat: chat}
	s.http = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Start listens and serves until ctx is canceled, then drains in-flight
// requests within the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.addr = ln.Addr()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()
	slog.Info("HTTP server listening", "addr", s.addr.String())

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		slog.Info("HTTP server shutting down")
		return s.http.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr reports the bound address once Start has listened. Useful when the
// configured port is 0.
func (s *Server) Addr() string {
	if s.addr == nil {
		return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	}
	return s.addr.String()
}
