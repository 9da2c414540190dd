package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/solatis/ratekeeper/internal/core/api"
	"github.com/solatis/ratekeeper/internal/core/config"
	"github.com/solatis/ratekeeper/internal/core/metrics"
)

// HTTPServer manages the echo HTTP server lifecycle.
type HTTPServer struct {
	echo   *echo.Echo
	config *config.QuoteAPIConfig
}

// NewHTTPServer builds the HTTP binding: quote routes, /healthz and, when m
// is set, /metrics.
func NewHTTPServer(cfg *config.QuoteAPIConfig, service *api.QuoteService, m *metrics.Metrics, logger *slog.Logger) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(strconv.Itoa(cfg.MaxRequestBytes) + "B"))
	e.Use(RequestLogging(logger))
	if m != nil {
		e.Use(recordHTTP(m))
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	api.RegisterRoutes(e, service)

	return &HTTPServer{echo: e, config: cfg}, nil
}

// Handler exposes the router, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

// Start binds and serves HTTP. Returns nil after Shutdown.
func (s *HTTPServer) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.HTTPPort))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve %s: %w", addr, err)
	}
	return nil
}

// Shutdown drains in-flight requests for up to 30 seconds.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func recordHTTP(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTP(c.Request().Method, route, c.Response().Status, time.Since(start))
			return nil
		}
	}
}
