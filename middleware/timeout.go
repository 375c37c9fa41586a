package middleware

import (
	"context"
	"time"

	"chanrpc/rpcerr"
)

// Timeout enforces a maximum duration for one dispatch, adapted from the
// teacher's TimeOutMiddleware. The handler goroutine is not cancelled when
// the timeout fires — the spec's dispatch engine is expected to check
// ctx.Done() itself for true cancellation (spec.md §5, "suspension points");
// this middleware only bounds how long the caller waits.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type outcome struct {
				result any
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				result, err := next(ctx, req)
				done <- outcome{result, err}
			}()

			select {
			case o := <-done:
				return o.result, o.err
			case <-ctx.Done():
				return nil, rpcerr.Timeout(req.Module, req.Method, d.Seconds())
			}
		}
	}
}
