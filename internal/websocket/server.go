// Package websocket implements the server side of the real-time messaging
// transport: the upgrade endpoint, per-socket connections, the session
// registry, and the dispatcher that ties them to the message store.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/staybridge/courier/internal/config"
	"github.com/staybridge/courier/internal/store"
)

// DisconnectFunc is called when an authenticated connection closes. It
// receives the user identifier that was bound to the connection.
type DisconnectFunc func(userID string)

// Server owns the HTTP listener, the WebSocket upgrade, the session
// registry, and the REST fallback routes.
type Server struct {
	cfg          *config.Config
	httpServer   *http.Server
	listener     net.Listener
	upgrader     websocket.Upgrader
	sessions     *SessionRegistry
	dispatcher   *Dispatcher
	store        store.Store
	logger       *slog.Logger
	onDisconnect DisconnectFunc
	mu           sync.RWMutex
	shutdown     bool
	wg           sync.WaitGroup
}

// NewServer wires a server over the given store. The WebSocket upgrade is
// served at cfg.WSPath and the REST fallback under /api/.
func NewServer(cfg *config.Config, st store.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  st,
		logger: logger,
		upgrader: websocket.Upgrader{
			// The page and the socket share an origin; the upgrade path is
			// same-host by deployment, so origins are not restricted here.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.sessions = NewSessionRegistry(logger)
	s.dispatcher = NewDispatcher(st, s.sessions, logger)

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.WSPath, s.handleWebSocket)
	s.registerREST(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Sessions returns the session registry.
func (s *Server) Sessions() *SessionRegistry {
	return s.sessions
}

// SetDisconnectHook registers a callback fired when an authenticated
// connection closes. Register before Start.
func (s *Server) SetDisconnectHook(fn DisconnectFunc) {
	s.onDisconnect = fn
}

// Start binds the listener and begins accepting connections. With an
// ":0"-style address, Addr reports the bound port after Start returns.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return fmt.Errorf("server is shutting down")
	}
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()

	s.logger.Info("transport listening", "addr", ln.Addr().String(), "ws_path", s.cfg.WSPath)
	return nil
}

// Stop closes all client connections and shuts the listener down.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.sessions.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timed out waiting for connections to drain")
	}

	return nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// handleWebSocket upgrades the HTTP request and hands the socket off.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Hold the read lock across the shutdown check and wg.Add so Stop
	// cannot slip a wg.Wait between them.
	s.mu.RLock()
	if s.shutdown {
		s.mu.RUnlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wg.Done()
		s.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	go s.handleConnection(context.Background(), conn)
}

// handleConnection runs one connection's read and write loops until either
// exits, then closes the connection.
func (s *Server) handleConnection(ctx context.Context, raw *websocket.Conn) {
	defer s.wg.Done()
	defer func() {
		_ = raw.Close()
	}()

	conn := NewConnection(raw, s)
	s.logger.Info("connection opened", "conn_id", conn.ID(), "remote", raw.RemoteAddr().String())

	errCh := make(chan error, 2)
	go func() {
		errCh <- conn.ReadLoop(ctx)
	}()
	go func() {
		errCh <- conn.WriteLoop(ctx)
	}()

	err := <-errCh
	_ = conn.Close()

	if err != nil && err != context.Canceled {
		s.logger.Info("connection closed", "conn_id", conn.ID(), "error", err)
	} else {
		s.logger.Info("connection closed", "conn_id", conn.ID())
	}
}
