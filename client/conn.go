// Package client implements the invocation engine (spec.md §4.3): the
// client side of one or more channel connections, the per-task FIFO
// bookkeeping each call uses, the reconnect supervisor, and pub/sub
// subscription dispatch.
//
// Grounded on the teacher's client.Client (round-robin transport pool,
// atomic counter, shared-not-borrowed connections) generalized from a
// single-shot request/reply call to a persistent multiplexed socket whose
// replies can be a plain value, an error, or a generator sequence, and on
// the original implementation's RpcClient (original_source/alar/rpc/client.py)
// for the exact task-queue and reconnect semantics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chanrpc/dsn"
	"chanrpc/frame"
	"chanrpc/rpcerr"
	"chanrpc/task"
	"chanrpc/transport"
)

// Conn is one client-side websocket connection to a server: its socket, the
// per-task queues of frames in flight, and the subscription table for
// PUBLISH frames arriving over it (spec.md §3 Task/Awaiter, §4.5).
type Conn struct {
	config dsn.Config
	log    *zap.Logger

	mu       sync.RWMutex
	socket   *transport.Socket
	serverID string
	open     bool

	seq    task.Sequence
	queues *task.Registry[*task.Queue]
	topics *subscriptions

	onConnect    func(c *Conn, serverID string)
	onDisconnect func(c *Conn, err error)
}

// NewConn creates an unopened connection for cfg. onConnect/onDisconnect are
// set by Client to wire the connection into its router tables and
// reconnect supervisor.
func NewConn(cfg dsn.Config, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		config: cfg,
		log:    log,
		queues: task.NewRegistry[*task.Queue](),
		topics: newSubscriptions(),
	}
}

// Open dials the server and starts the read pump. It blocks until the
// websocket handshake completes; the CONNECT frame (which carries the
// server's identity) arrives asynchronously via onConnect.
func (c *Conn) Open(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	wireURL, err := buildURL(c.config)
	if err != nil {
		return err
	}
	if c.config.Scheme == dsn.WSUnix {
		unixPath := c.config.Path
		dialer = &websocket.Dialer{
			NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", unixPath)
			},
		}
	}

	wsConn, _, err := dialer.DialContext(ctx, wireURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", rpcerr.ErrConnection, err)
	}

	socket := transport.New(wsConn, 0)
	c.mu.Lock()
	c.socket = socket
	c.open = true
	c.mu.Unlock()

	go socket.Listen(c.handleFrame, c.handleClose)
	return nil
}

func buildURL(cfg dsn.Config) (string, error) {
	q := url.Values{}
	if cfg.ID != "" {
		q.Set("id", cfg.ID)
	}
	if cfg.Secret != "" {
		q.Set("secret", cfg.Secret)
	}
	query := ""
	if enc := q.Encode(); enc != "" {
		query = "?" + enc
	}

	// For a unix-domain socket NetDialContext overrides the actual dial
	// target, so the URL's host is a placeholder and the path is left empty
	// (sent as "/", the route a unix-socket server serves); only the query
	// matters to the server's handleUpgrade.
	if cfg.Scheme == dsn.WSUnix {
		return "ws://unix" + query, nil
	}

	scheme := "ws"
	if cfg.Scheme == dsn.WSS {
		scheme = "wss"
	}
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s://%s:%d%s%s", scheme, cfg.Host, cfg.Port, path, query), nil
}

func (c *Conn) handleFrame(f *frame.Frame) {
	switch f.Event {
	case frame.CONNECT:
		serverID, _ := f.StringTaskID()
		c.mu.Lock()
		c.serverID = serverID
		c.mu.Unlock()
		if c.onConnect != nil {
			c.onConnect(c, serverID)
		}
	case frame.RETURN, frame.THROW, frame.YIELD:
		c.resolve(f)
	case frame.PUBLISH:
		topic, _ := f.StringTaskID()
		var payload json.RawMessage
		f.DecodePayload(0, &payload)
		c.topics.dispatch(topic, payload)
	case frame.PING:
		ts, ok := f.IntTaskID()
		if ok {
			c.send(frame.PONG, ts)
		}
	}
}

func (c *Conn) resolve(f *frame.Frame) {
	id, ok := f.IntTaskID()
	if !ok {
		return
	}
	q, ok := c.queues.Get(id)
	if !ok {
		return
	}
	if f.Event == frame.THROW {
		var wire rpcerr.Wire
		f.DecodePayload(0, &wire)
		q.Reject(rpcerr.Reconstruct(&wire))
		return
	}
	var data json.RawMessage
	f.DecodePayload(0, &data)
	q.Resolve(data)
}

func (c *Conn) handleClose(err error) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()

	cause := fmt.Errorf("%w: %v", rpcerr.ErrConnection, err)
	for _, q := range c.queues.Drain() {
		for _, w := range q.Drain() {
			resolveOnDisconnect(w, cause)
		}
	}
	c.topics.clear()

	if c.onDisconnect != nil {
		c.onDisconnect(c, err)
	}
}

// resolveOnDisconnect completes one waiter left pending by a dropped
// connection per spec.md §4.3's per-event rule, rather than rejecting every
// outstanding call with the same connection error regardless of what it was
// waiting for: an INVOKE settles as if the method returned nothing, a YIELD
// settles as end-of-stream, a RETURN settles as the shutdown it already
// asked for, and only a THROW — which was already carrying an error to
// begin with — rejects, with that same error.
func resolveOnDisconnect(w *task.Waiter, cause error) {
	switch w.Event {
	case frame.INVOKE:
		w.Resolve(nil)
	case frame.YIELD:
		w.Resolve(iteratorDone(nil))
	case frame.RETURN:
		w.Resolve(iteratorDone(w.Input))
	case frame.THROW:
		var wire rpcerr.Wire
		if len(w.Input) > 0 && json.Unmarshal(w.Input, &wire) == nil {
			w.Reject(rpcerr.Reconstruct(&wire))
			return
		}
		w.Reject(cause)
	default:
		w.Reject(cause)
	}
}

// iteratorDone builds the {done:true, value} body a YIELD/RETURN waiter
// expects, matching the shape RemoteCall.Next decodes.
func iteratorDone(value json.RawMessage) json.RawMessage {
	body := struct {
		Done  bool            `json:"done"`
		Value json.RawMessage `json:"value"`
	}{Done: true, Value: value}
	data, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	return data
}

// send writes a frame, translating a closed socket into rpcerr.ErrConnection
// so callers never need to know about the transport package's sentinel.
func (c *Conn) send(event frame.Event, taskID any, payload ...any) error {
	c.mu.RLock()
	socket := c.socket
	isOpen := c.open
	c.mu.RUnlock()
	if !isOpen || socket == nil {
		return fmt.Errorf("%w: not connected", rpcerr.ErrConnection)
	}
	if err := socket.WriteFrame(event, taskID, payload...); err != nil {
		return fmt.Errorf("%w: %v", rpcerr.ErrConnection, err)
	}
	return nil
}

// ServerID returns the identity the server announced in its CONNECT frame,
// empty until the handshake completes.
func (c *Conn) ServerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverID
}

// IsOpen reports whether the underlying socket is currently connected.
func (c *Conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Close closes the underlying socket; handleClose runs asynchronously as a
// result and drains outstanding tasks.
func (c *Conn) Close() error {
	c.mu.RLock()
	socket := c.socket
	c.mu.RUnlock()
	if socket == nil {
		return nil
	}
	return socket.Close()
}

// Invoke implements router.Caller: it sends an INVOKE frame for module.method
// and returns a *RemoteCall the caller drives as either a future or an
// iterator (spec.md §4.3/§9). The returned value is typed `any` to satisfy
// router.Caller without router importing this package.
func (c *Conn) Invoke(module, method string, args []any) any {
	id := c.seq.Next()
	q := &task.Queue{}
	c.queues.Set(id, q)
	waiter, ch := q.Push(frame.INVOKE, nil)

	if err := c.send(frame.INVOKE, id, module, method, args); err != nil {
		q.Cancel(waiter)
		c.queues.Delete(id)
		return &RemoteCall{err: err}
	}

	return &RemoteCall{
		conn:    c,
		id:      id,
		queue:   q,
		pending: waiter,
		ch:      ch,
		timeout: time.Duration(c.config.Timeout) * time.Millisecond,
	}
}
