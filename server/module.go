// Package server implements the dispatch engine, module lifecycle, keepalive,
// pub/sub, and connection accept/handshake the RPC channel's server side
// needs (spec.md §4.4, §4.6, §4.9, §4.10, §4.11).
//
// Grounded on the teacher's server package (server/server.go accept loop,
// middleware chain, graceful Shutdown; server/service.go's registration
// concept) but dispatch no longer goes through reflection: spec.md §1
// mandates "the core assumes a registry of module names mapped to callable
// dispatch closures" in place of reflective method lookup, so Module is an
// explicit interface callers implement themselves.
package server

import (
	"context"
	"encoding/json"
)

// Module is one named service singleton. Invoke receives the method name and
// raw JSON argument array already split out of the frame; it returns either
// a plain value (sent back as RETURN), an Iterator (stored under the task's
// id and driven by later YIELD/RETURN/THROW frames), or an error (sent back
// as THROW).
type Module interface {
	Invoke(ctx context.Context, method string, args []json.RawMessage) (any, error)
}

// Factory builds one Module singleton; called at most once per server
// instance (spec.md §3 ModuleRecord: "singleton materialized lazily... or at
// server open() if lifecycle is enabled").
type Factory func() Module

// Hook is an optional init/destroy lifecycle callback.
type Hook func(ctx context.Context) error

// Iterator is what a Module.Invoke returns to signal "this call streams
// rather than returning once." Its three methods mirror the three frame
// events the dispatch engine drives it with once the task is open.
type Iterator interface {
	// Yield advances the stream with input (the payload carried by a client
	// YIELD frame) and returns the next value, or done=true at end of
	// stream.
	Yield(ctx context.Context, input json.RawMessage) (value any, done bool, err error)

	// Return closes the stream early in response to a client RETURN frame.
	Return(ctx context.Context) error

	// Throw injects an error into the stream in response to a client THROW
	// frame; spec.md §4.4 always replies THROW with the resulting error.
	Throw(ctx context.Context, cause error) error
}
