package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/keycast/keycast/internal/broadcast"
	"github.com/keycast/keycast/internal/config"
	"github.com/keycast/keycast/internal/ingress"
	"github.com/keycast/keycast/internal/input"
	"github.com/keycast/keycast/internal/metrics"
	"github.com/keycast/keycast/internal/registry"
)

type Server struct {
	config         *config.Config
	registry       *registry.Registry
	publisher      broadcast.Publisher
	ingress        *ingress.Ingress
	static         http.Handler
	metrics        *metrics.Metrics
	input          *input.Adapter
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	startedAt      time.Time

	baseCtx context.Context
	closing atomic.Bool
}

func NewServer(cfg *config.Config, reg *registry.Registry, pub broadcast.Publisher, static http.Handler) *Server {
	s := &Server{
		config:         cfg,
		registry:       reg,
		publisher:      pub,
		ingress:        ingress.New(pub),
		static:         static,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		startedAt:      time.Now(),
		baseCtx:        context.Background(),
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetMetrics exposes m at /metrics. Must be called before Routes.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetInput reports a's capability and lines on /api/status. Must be called
// before Routes.
func (s *Server) SetInput(a *input.Adapter) {
	s.input = a
}

func (s *Server) sessionOptions() SessionOptions {
	b := s.config.Broadcast
	return SessionOptions{
		SendBuffer:     b.SendBuffer,
		WriteWait:      b.WriteWait,
		PongWait:       b.PongWait,
		MaxMessageSize: b.MaxMessageSize,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(securityHeaders)
		r.Get("/health", s.handleHealth)
		r.Get("/api/status", s.handleStatus)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

		for _, path := range []string{"/send-key", "/api/broadcast"} {
			r.Method(http.MethodGet, path, s.ingress)
			r.Method(http.MethodPost, path, s.ingress)
		}

		if s.static != nil {
			r.Handle("/*", s.static)
		}
	})
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade error", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := newSession(uuid.NewString(), r.RemoteAddr, conn, s.registry, s.publisher, s.sessionOptions())
	sess.start(s.baseCtx)
	if s.closing.Load() {
		// Upgraded while CloseAll was running.
		sess.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	slog.Info("client connected", "clientId", sess.ID(), "remote", r.RemoteAddr, "clients", s.registry.Len())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

// CloseAll tears down every registered session with a going-away frame and
// waits for their sockets to close. Sessions upgraded after CloseAll starts
// are closed as soon as they register.
func (s *Server) CloseAll() {
	s.closing.Store(true)

	var pending []*session
	for _, c := range s.registry.Enumerate() {
		if sess, ok := c.(*session); ok {
			sess.closeWith(websocket.CloseGoingAway, "server shutting down")
			pending = append(pending, sess)
			continue
		}
		c.Close()
	}
	for _, sess := range pending {
		<-sess.closed
	}
}

// Listen binds the configured address. A bind failure is returned
// immediately so startup can abort.
func (s *Server) Listen() (net.Listener, error) {
	addr := s.config.ServerAddress()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

// Serve runs the HTTP server on ln until ctx is cancelled, then shuts it
// down gracefully and closes every client session. The listener stops
// accepting upgrades before the sessions are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.baseCtx = ctx
	httpServer := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.CloseAll()
		return err
	case <-ctx.Done():
	}

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	s.CloseAll()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
