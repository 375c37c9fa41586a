package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chanrpc/dsn"
	"chanrpc/middleware"
	"chanrpc/rpcerr"
)

// Server is one RPC channel endpoint accepting connections, grounded on the
// teacher's Server (accept loop, middleware chain, graceful Shutdown) but
// speaking websocket frames instead of the TCP binary protocol and
// dispatching to explicit Module.Invoke instead of reflection.
type Server struct {
	config dsn.Config

	registry    *Registry
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc

	upgrader websocket.Upgrader
	clients  *clientTable

	httpServer *http.Server
	closing    chan struct{}
	log        *zap.Logger
}

// New creates a server bound to the given config. ServerID defaults to the
// config's DSN if not set explicitly (spec.md §4.10).
func New(cfg dsn.Config, log *zap.Logger) *Server {
	if cfg.ServerID == "" {
		cfg.ServerID = (&cfg).DSN()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		config:   cfg,
		registry: NewRegistry(),
		clients:  newClientTable(),
		closing:  make(chan struct{}),
		log:      log,
	}
}

// Use appends a dispatch middleware; the root handler it wraps resolves and
// invokes the module (see dispatchRoot).
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Register adds a module (spec.md §4.11).
func (s *Server) Register(name string, factory Factory, init, destroy Hook) {
	s.registry.Register(name, factory, init, destroy)
}

// Open starts lifecycle (if enabled), builds the middleware chain, and
// starts listening per the configured DSN.
func (s *Server) Open(ctx context.Context, enableLifecycle bool) error {
	if err := s.registry.Open(ctx, enableLifecycle); err != nil {
		return err
	}
	s.handler = middleware.Chain(s.middlewares...)(s.dispatchRoot)

	mux := http.NewServeMux()
	mux.HandleFunc(s.pathOrDefault(), s.handleUpgrade)
	s.httpServer = &http.Server{Handler: mux}

	listener, err := s.listen()
	if err != nil {
		return err
	}

	go s.keepaliveLoop()
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) pathOrDefault() string {
	// For a unix-domain socket, Path is the socket file, not an HTTP route;
	// clients dial it with an empty URL path, which arrives as "/".
	if s.config.Scheme == dsn.WSUnix || s.config.Path == "" {
		return "/"
	}
	return s.config.Path
}

func (s *Server) listen() (net.Listener, error) {
	if s.config.Scheme == dsn.WSUnix {
		return net.Listen("unix", s.config.Path)
	}
	return net.Listen("tcp", fmt.Sprintf("%s:%d", s.config.Host, s.config.Port))
}

// Close shuts every connection and the module registry down; a failing
// destroy hook does not abort the rest of teardown, and every hook failure
// is combined into the returned error.
func (s *Server) Close(ctx context.Context, timeout time.Duration) error {
	close(s.closing)

	s.clients.Range(func(_ string, c *conn) bool {
		c.closeIterators(ctx)
		c.socket.Close()
		return true
	})

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}

	return s.registry.Close(ctx)
}

// ServerID is the identity string sent in the CONNECT handshake.
func (s *Server) ServerID() string { return s.config.ServerID }

// dispatchRoot is the innermost handler the middleware chain wraps: resolve
// the module, check its readiness, and invoke it (spec.md §4.4 point 1).
func (s *Server) dispatchRoot(ctx context.Context, req *middleware.Request) (any, error) {
	instance, ready, exists := s.registry.Get(req.Module)
	if !exists || !ready {
		return nil, rpcerr.ServiceUnavailable(req.Module)
	}
	return instance.Invoke(ctx, req.Method, req.Args)
}
