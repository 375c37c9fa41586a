package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"chanrpc/rpcerr"
)

// RateLimit bounds dispatch throughput with a token-bucket limiter, adapted
// from the teacher's RateLimitMiddleware (golang.org/x/time/rate). The
// limiter is built once, in the outer closure, and shared across every
// call — building it per-request would hand every request a fresh full
// bucket and defeat the limit entirely.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (any, error) {
			if !limiter.Allow() {
				return nil, fmt.Errorf("%w: %s.%s() rate limit exceeded", rpcerr.ErrMethod, req.Module, req.Method)
			}
			return next(ctx, req)
		}
	}
}
