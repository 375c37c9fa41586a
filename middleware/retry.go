package middleware

import (
	"context"
	"errors"
	"time"

	"chanrpc/rpcerr"
)

// Retry re-attempts a dispatch that failed with a transient error —
// connection or timeout kinds — with exponential backoff, adapted from the
// teacher's RetryMiddleware. Only modules that proxy to an external
// backend of their own should be wrapped with this; spec.md's own channel
// semantics already has its own, separate reconnect supervisor (§4.7) for
// the client-to-server link.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (any, error) {
			result, err := next(ctx, req)
			for attempt := 0; attempt < maxAttempts && isTransient(err); attempt++ {
				time.Sleep(baseDelay * (1 << attempt))
				result, err = next(ctx, req)
			}
			return result, err
		}
	}
}

func isTransient(err error) bool {
	return errors.Is(err, rpcerr.ErrConnection) || errors.Is(err, rpcerr.ErrTimeout)
}
