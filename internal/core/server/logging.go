package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/solatis/ratekeeper/internal/core/logging"
)

// UnaryLoggingInterceptor logs each call with a request id, method, status
// code and duration. The request logger is stored in the context.
func UnaryLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, reqLogger := logging.WithRequest(ctx, logger)

		start := time.Now()
		resp, err := handler(ctx, req)

		reqLogger.InfoContext(ctx, "request completed",
			slog.String("method", info.FullMethod),
			slog.String("status_code", status.Code(err).String()),
			slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/1e6),
		)
		return resp, err
	}
}

// RequestLogging is the echo counterpart of UnaryLoggingInterceptor.
func RequestLogging(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, reqLogger := logging.WithRequest(c.Request().Context(), logger)
			c.SetRequest(c.Request().WithContext(ctx))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			reqLogger.InfoContext(ctx, "request completed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.Int("status_code", c.Response().Status),
				slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/1e6),
			)
			return nil
		}
	}
}
