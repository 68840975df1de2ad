package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/relay/internal/config"
	"github.com/cory-johannsen/relay/internal/relay"
)

// shutdownTimeout bounds how long Stop waits for in-flight HTTP requests.
const shutdownTimeout = 5 * time.Second

// Handler receives connection events from the transport.
// *relay.Relay satisfies it.
type Handler interface {
	Connect(peer relay.Peer) string
	Receive(id string, payload []byte)
	Disconnect(id string)
}

// RouteRegistrar mounts additional HTTP routes next to the upgrade endpoint.
type RouteRegistrar interface {
	Register(r *mux.Router)
}

// Acceptor serves WebSocket upgrades on every path not claimed by a
// registered route and hands each upgraded connection to a Handler.
type Acceptor struct {
	cfg      config.ServerConfig
	handler  Handler
	logger   *zap.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	conns    map[*Conn]struct{}
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ServerConfig, handler Handler, logger *zap.Logger, routes ...RouteRegistrar) *Acceptor {
	a := &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		router: mux.NewRouter(),
		conns:  make(map[*Conn]struct{}),
	}
	for _, rr := range routes {
		rr.Register(a.router)
	}
	a.router.PathPrefix("/").HandlerFunc(a.handleUpgrade)
	return a
}

// ServeHTTP implements http.Handler.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// ListenAndServe starts the listener and serves until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           a,
		ReadHeaderTimeout: a.cfg.WriteTimeout,
	}

	a.mu.Lock()
	a.listener = listener
	a.server = srv
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving on %s: %w", listener.Addr(), err)
	}
	return nil
}

// handleUpgrade upgrades one request and serves the connection until it ends.
func (a *Acceptor) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	start := time.Now()
	conn := NewConn(ws, a.cfg, a.logger)
	if !a.track(conn) {
		conn.Close()
		_ = ws.Close()
		return
	}
	defer a.untrack(conn)

	a.logger.Info("client connected", zap.String("remote_addr", conn.RemoteAddr()))
	conn.Serve(a.handler)
	a.logger.Info("client disconnected",
		zap.String("remote_addr", conn.RemoteAddr()),
		zap.Duration("duration", time.Since(start)),
	)
}

func (a *Acceptor) track(c *Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return false
	}
	a.conns[c] = struct{}{}
	return true
}

func (a *Acceptor) untrack(c *Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, c)
}

// Stop gracefully stops the acceptor, closing the listener and every open
// connection and waiting for their disconnects to be reported.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	srv := a.server
	open := make([]*Conn, 0, len(a.conns))
	for c := range a.conns {
		open = append(open, c)
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	for _, c := range open {
		c.Close()
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped", zap.Int("closed_connections", len(open)))
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
