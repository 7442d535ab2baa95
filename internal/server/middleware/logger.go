package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haahuss/Ticketing-Security-Gate/internal/pkg/logger"
)

// Logger records one structured line per request completed, except
// for the /healthz and /readyz probes.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if path == "/healthz" || path == "/readyz" {
			return
		}

		latency := time.Since(startTime)
		l := logger.FromContext(c.Request.Context())
		l.Info("http request completed",
			slog.String("component", "http.access"),
			slog.Int("status_code", c.Writer.Status()),
			slog.Int64("latency_ms", latency.Milliseconds()),
			slog.String("client_ip", c.ClientIP()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
		)

		if len(c.Errors) > 0 {
			l.Warn("http request contains gin errors", slog.String("errors", c.Errors.String()))
		}
	}
}
