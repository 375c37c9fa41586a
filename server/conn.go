package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"chanrpc/frame"
	"chanrpc/middleware"
	"chanrpc/rpcerr"
	"chanrpc/task"
	"chanrpc/transport"
)

// conn is one accepted connection's state: its socket, its client identity,
// liveness flag for the keepalive loop, and its open-iterator task map
// (spec.md §3 ClientInfo + the server-side half of §4.5's task registries).
type conn struct {
	socket   *transport.Socket
	clientID string

	isAlive   atomic.Bool
	iterators *task.Registry[Iterator]
	maxDelay  int64 // milliseconds

	handler middleware.HandlerFunc
	log     *zap.Logger
}

func newConn(socket *transport.Socket, clientID string, maxDelay int64, handler middleware.HandlerFunc, log *zap.Logger) *conn {
	c := &conn{
		socket:    socket,
		clientID:  clientID,
		iterators: task.NewRegistry[Iterator](),
		maxDelay:  maxDelay,
		handler:   handler,
		log:       log,
	}
	c.isAlive.Store(true)
	return c
}

// handle processes one decoded frame (spec.md §4.4's dispatch contract).
// Unknown events are ignored — the frame decoder already rejects malformed
// wire data, so anything reaching here is a well-formed but inapplicable
// event for the server side (e.g. a stray PING).
func (c *conn) handle(ctx context.Context, f *frame.Frame) {
	switch f.Event {
	case frame.INVOKE:
		c.handleInvoke(ctx, f)
	case frame.YIELD, frame.RETURN, frame.THROW:
		c.handleAdvance(ctx, f)
	case frame.PONG:
		c.handlePong(f)
	}
}

func (c *conn) handleInvoke(ctx context.Context, f *frame.Frame) {
	var module, method string
	if ok, err := f.DecodePayload(0, &module); !ok || err != nil {
		return
	}
	if ok, err := f.DecodePayload(1, &method); !ok || err != nil {
		return
	}
	var args []json.RawMessage
	f.DecodePayload(2, &args)

	result, err := c.handler(ctx, &middleware.Request{Module: module, Method: method, Args: args})
	if err != nil {
		c.reply(f.TaskID, frame.THROW, rpcerr.FromGo(err))
		return
	}

	if it, ok := result.(Iterator); ok {
		id, ok := f.IntTaskID()
		if !ok {
			return
		}
		c.iterators.Set(id, it)
		// No reply: the next YIELD from the client drives the first advance
		// (spec.md §4.4, "Initial INVOKE is acknowledged implicitly").
		return
	}

	c.reply(f.TaskID, frame.RETURN, result)
}

func (c *conn) handleAdvance(ctx context.Context, f *frame.Frame) {
	id, ok := f.IntTaskID()
	if !ok {
		return
	}
	it, ok := c.iterators.Get(id)
	if !ok {
		c.reply(f.TaskID, frame.THROW, rpcerr.FromGo(
			fmt.Errorf("%w: failed to call task %d, no such iterator", rpcerr.ErrProtocol, id)))
		return
	}

	var input json.RawMessage
	f.DecodePayload(0, &input)

	switch f.Event {
	case frame.YIELD:
		value, done, err := it.Yield(ctx, input)
		if err != nil {
			c.iterators.Delete(id)
			c.reply(f.TaskID, frame.THROW, rpcerr.FromGo(err))
			return
		}
		if done {
			c.iterators.Delete(id)
		}
		c.reply(f.TaskID, frame.YIELD, map[string]any{"done": done, "value": value})

	case frame.RETURN:
		c.iterators.Delete(id)
		if err := it.Return(ctx); err != nil {
			c.reply(f.TaskID, frame.THROW, rpcerr.FromGo(err))
			return
		}
		c.reply(f.TaskID, frame.RETURN, map[string]any{"done": true})

	case frame.THROW:
		var causeWire rpcerr.Wire
		json.Unmarshal(input, &causeWire)
		cause := rpcerr.Reconstruct(&causeWire)
		err := it.Throw(ctx, cause)
		c.iterators.Delete(id)
		c.reply(f.TaskID, frame.THROW, rpcerr.FromGo(err))
	}
}

func (c *conn) handlePong(f *frame.Frame) {
	c.isAlive.Store(true)
	ts, ok := f.IntTaskID()
	if !ok {
		return
	}
	if nowMillis()-normalizeMillis(ts) > c.maxDelay {
		c.socket.Close()
	}
}

func (c *conn) reply(taskID any, event frame.Event, payload any) {
	c.socket.WriteFrame(event, taskID, payload)
}

// closeIterators releases every open generator when the connection ends
// (spec.md §4.5 / §5 "connection close cancels all open iterators").
func (c *conn) closeIterators(ctx context.Context) {
	for _, it := range c.iterators.Drain() {
		it.Return(ctx)
	}
}
