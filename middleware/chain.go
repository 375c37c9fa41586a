// Package middleware implements the onion-model dispatch chain the server
// wraps each INVOKE call in: logging, per-call timeout, rate limiting, and
// retry for modules that proxy to flaky backends. None is installed by
// default; a server adds each one with Server.Use.
//
// Grounded on the teacher's middleware package (middleware/middleware.go);
// the shape changes from wrapping a *message.RPCMessage request/response
// pair to wrapping a single dispatch Request and its (result, error) since
// spec.md's dispatch engine (§4.4) already separates single-value replies
// from iterator replies before middleware would ever see them — middleware
// only governs the initial method call that decides which of those two
// shapes to produce.
package middleware

import (
	"context"
	"encoding/json"
)

// Request is the module/method/args triple a server dispatches on INVOKE,
// unwrapped from its frame before the middleware chain runs. Args stay as
// raw JSON — only the Module's own Invoke method knows how to decode each
// argument's concrete type.
type Request struct {
	Module string
	Method string
	Args   []json.RawMessage
}

// HandlerFunc performs (or simulates) one dispatch. A nil error with a
// non-nil result that happens to be an iterator is handled by the dispatch
// engine directly — middleware itself is agnostic to which kind of value
// comes back.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Middleware wraps a HandlerFunc with cross-cutting behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one listed is outermost: it sees
// the call first on the way in and last on the way out.
//
//	Chain(A, B, C)(handler)  ==  A(B(C(handler)))
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
