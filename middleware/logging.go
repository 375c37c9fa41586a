package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Logging records module, method, duration and any error for each dispatch,
// adapted from the teacher's LoggingMiddleware onto structured zap fields
// instead of the standard logger, matching this codebase's ambient logging
// choice (the server logs through zap as well).
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (any, error) {
			start := time.Now()
			result, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("module", req.Module),
				zap.String("method", req.Method),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("dispatch failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("dispatch ok", fields...)
			}
			return result, err
		}
	}
}
