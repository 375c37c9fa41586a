package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"chanrpc/dsn"
	"chanrpc/router"
)

// Client is the invocation-engine front door (spec.md §6.4): it owns one
// Conn per configured server, a router.ModuleProxy per registered module
// name (shared across every server that module is reachable on), and the
// pub/sub subscriptions that must survive reconnects.
//
// Grounded on the teacher's client.Client, which owns a registry + balancer
// + per-address transport pool; here the "registry" is static configuration
// (one Connect call per server), the "balancer" is
// router.ModuleProxy.Select, and the "transport pool" is one persistent
// multiplexed Conn per server instead of a pool of short-lived ones.
type Client struct {
	log *zap.Logger

	mu       sync.Mutex
	conns    []*Conn
	proxies  map[string]*ModuleProxy
	handlers map[string][]Handler // topic -> handlers, replayed onto new conns

	errorHandler func(error)
	paused       bool
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithLogger sets the client's logger (default zap.NewNop()).
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithErrorHandler installs a hook invoked for errors that have no other
// caller to report to (a lost connection, a failed reconnect attempt). If
// the handler needs to do async work it must go it itself —
// Go has no implicit fire-and-forget scheduling (spec.md §7 final
// paragraph).
func WithErrorHandler(h func(error)) Option {
	return func(c *Client) { c.errorHandler = h }
}

// New creates a Client with no connections yet; call Connect for each server
// DSN to reach.
func New(opts ...Option) *Client {
	c := &Client{
		log:      zap.NewNop(),
		proxies:  make(map[string]*ModuleProxy),
		handlers: make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.errorHandler == nil {
		c.errorHandler = func(error) {}
	}
	return c
}

// Connect opens a connection to the server described by cfg and wires it
// into every currently- and later-registered module's routing table. Its
// disconnect callback starts the reconnect supervisor (spec.md §4.7) when
// the connection is lost.
func (c *Client) Connect(ctx context.Context, cfg dsn.Config) (*Conn, error) {
	conn := NewConn(cfg, c.log)
	conn.onConnect = c.handleConnConnected
	conn.onDisconnect = c.handleConnDisconnected

	if err := conn.Open(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conns = append(c.conns, conn)
	c.mu.Unlock()

	return conn, nil
}

// Register returns the ModuleProxy for name, creating it (backed by an
// empty RemoteSingletonTable) on first use. Every currently connected server
// is registered into the new proxy's table immediately.
func (c *Client) Register(name string) *ModuleProxy {
	c.mu.Lock()
	defer c.mu.Unlock()

	proxy, ok := c.proxies[name]
	if !ok {
		proxy = &ModuleProxy{ModuleProxy: router.NewModuleProxy(name)}
		c.proxies[name] = proxy
		for _, conn := range c.conns {
			if conn.IsOpen() {
				handle := router.NewRemoteHandle(conn.ServerID(), conn)
				handle.SetReady(true)
				proxy.Table.Set(conn.ServerID(), handle)
			}
		}
	}
	return proxy
}

// handleConnConnected runs on every successful (re)connect: it (re)keys
// conn's handle into every registered module's table under its announced
// serverId and marks it ready, then replays every subscribed topic onto the
// new connection (spec.md §4.7's reconnect supervisor + the server-identity
// re-keying behavior supplemented from original_source/alar/rpc/client.py
// __updateServerId).
func (c *Client) handleConnConnected(conn *Conn, serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, proxy := range c.proxies {
		if h, ok := findHandleByConn(proxy, conn); ok && h.ServerID != serverID {
			proxy.Table.Delete(h.ServerID)
		}
		if h, ok := proxy.Table.Get(serverID); ok {
			h.SetReady(true)
		} else {
			handle := router.NewRemoteHandle(serverID, conn)
			handle.SetReady(true)
			proxy.Table.Set(serverID, handle)
		}
	}

	for topic, hs := range c.handlers {
		for _, h := range hs {
			conn.topics.add(topic, h)
		}
	}
}

func findHandleByConn(proxy *ModuleProxy, conn *Conn) (*router.RemoteHandle, bool) {
	for _, h := range proxy.Table.All() {
		if h.Conn == conn {
			return h, true
		}
	}
	return nil, false
}

// handleConnDisconnected marks every table entry backed by conn not-ready
// (spec.md §4.7) and, unless the client is closing, starts the reconnect
// loop for it.
func (c *Client) handleConnDisconnected(conn *Conn, err error) {
	c.mu.Lock()
	for _, proxy := range c.proxies {
		if h, ok := findHandleByConn(proxy, conn); ok {
			h.SetReady(false)
		}
	}
	closing := c.paused
	c.mu.Unlock()

	if err != nil {
		c.errorHandler(fmt.Errorf("connection to %s lost: %w", conn.config.DSN(), err))
	}
	if !closing {
		go c.reconnectLoop(conn)
	}
}

// Subscribe registers handler for topic on every current connection and
// replays it onto any future (re)connection.
func (c *Client) Subscribe(topic string, handler Handler) {
	c.mu.Lock()
	c.handlers[topic] = append(c.handlers[topic], handler)
	conns := append([]*Conn(nil), c.conns...)
	c.mu.Unlock()

	for _, conn := range conns {
		conn.topics.add(topic, handler)
	}
}

// Unsubscribe removes handlers from topic (all of them if none are given)
// across every connection, reporting whether anything was removed.
func (c *Client) Unsubscribe(topic string, handlers ...Handler) bool {
	c.mu.Lock()
	removedAny := false
	if len(handlers) == 0 {
		removedAny = len(c.handlers[topic]) > 0
		delete(c.handlers, topic)
	} else {
		kept := c.handlers[topic][:0:0]
		for _, h := range c.handlers[topic] {
			if containsHandler(handlers, h) {
				removedAny = true
				continue
			}
			kept = append(kept, h)
		}
		c.handlers[topic] = kept
	}
	conns := append([]*Conn(nil), c.conns...)
	c.mu.Unlock()

	for _, conn := range conns {
		conn.topics.remove(topic, handlers)
	}
	return removedAny
}

// Pause marks the client as intentionally closing so a subsequent
// disconnect does not trigger the reconnect supervisor.
func (c *Client) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume re-enables the reconnect supervisor after Pause.
func (c *Client) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// Close pauses reconnects and closes every connection.
func (c *Client) Close(ctx context.Context) error {
	c.Pause()
	c.mu.Lock()
	conns := append([]*Conn(nil), c.conns...)
	c.mu.Unlock()

	var firstErr error
	for _, conn := range conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
