// Package server exposes the engine over HTTP and WebSocket. Each inbound
// message becomes one skill turn; the server itself holds no conversation
// state.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agendahealth/consulta/internal/config"
	"github.com/agendahealth/consulta/internal/logging"
	"github.com/agendahealth/consulta/internal/skill"
	"github.com/agendahealth/consulta/internal/version"
)

const (
	maxMessageBytes = 64 * 1024
	turnTimeout     = 30 * time.Second
)

// Server is the consulta HTTP + WebSocket surface.
type Server struct {
	cfg      config.ServerConfig
	log      *logging.Logger
	registry *skill.Registry
	version  string

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates the server around a populated skill registry.
func New(cfg config.ServerConfig, registry *skill.Registry, log *logging.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      log.Sub("server"),
		registry: registry,
		version:  version.Version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin and non-browser clients only.
				return r.Header.Get("Origin") == ""
			},
		},
	}
}

// Start begins listening. It blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      withMiddleware(mux, s.log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Strs("skills", s.registry.List()).
		Msg("server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
