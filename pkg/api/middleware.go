package api

import (
	"log/slog"
	"time"

	echo "github.com/labstack/echo/v5"
)

// securityHeaders sets the response headers every API reply carries.
// Reports are per-owner, so nothing is cacheable by intermediaries.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}

// requestLogger logs each request at debug level, and at warn level when
// the handler returned an error.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"owner", extractOwner(c),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.Warn("Request failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("Request handled", attrs...)
			}
			return err
		}
	}
}
