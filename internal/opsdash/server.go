// Package opsdash serves a small operator dashboard: an HTML page
// summarizing recent matching sessions and a WebSocket endpoint that
// streams live session-lifecycle events from the shared event bus.
// Optionally gated behind HTTP basic auth.
package opsdash

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/events"
	"github.com/mikabele/canoe-go/internal/sessionlog"
)

// Server serves the operator dashboard.
type Server struct {
	cfg    config.ListenConfig
	bus    *events.Bus
	ledger *sessionlog.Ledger
	logger *slog.Logger

	upgrader websocket.Upgrader
	tmpl     *template.Template
	httpSrv  *http.Server

	// shutdown is closed by Run when ctx is cancelled. http.Server.Shutdown
	// does not close or wait for hijacked connections such as upgraded
	// WebSockets, so handleWebSocket watches this directly instead of
	// relying on the request context.
	shutdown chan struct{}
}

// New creates a dashboard server. ledger may be nil, in which case the
// dashboard page shows no recent-session history (the WebSocket feed
// still works).
func New(cfg config.ListenConfig, bus *events.Bus, ledger *sessionlog.Ledger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		bus:      bus,
		ledger:   ledger,
		logger:   logger,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		tmpl:     template.Must(template.New("dashboard").Parse(dashboardTemplate)),
		shutdown: make(chan struct{}),
	}
}

// Handler builds the dashboard's http.Handler, wrapping it in basic
// auth middleware when the listener config requires it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealthz)

	var handler http.Handler = mux
	if s.cfg.RequiresAuth() {
		handler = s.requireBasicAuth(handler)
	}
	return handler
}

// Run starts the HTTP listener and blocks until ctx is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("opsdash: listening", "addr", addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		close(s.shutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) requireBasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.cfg.BasicAuthUser ||
			bcrypt.CompareHashAndPassword([]byte(s.cfg.BasicAuthPasswordHash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="canoe ops dashboard"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleWebSocket upgrades the connection and streams bus events as
// JSON until the client disconnects or the server shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("opsdash: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(ch)

	// Drain client-initiated reads so ping/pong and close frames are
	// processed; the dashboard never expects client messages.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-s.shutdown:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
