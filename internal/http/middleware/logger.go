package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/skillflow/common/logger"
)

// Logger logs one line per request. Delivery headers are attached to the
// request context so every log line of a webhook carries them.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		fields := logger.LogFields{Component: "skillflow.http"}
		if id := c.GetHeader("X-GitHub-Delivery"); id != "" {
			fields.DeliveryID = &id
		}
		if ev := c.GetHeader("X-GitHub-Event"); ev != "" {
			fields.EventType = &ev
		}
		c.Request = c.Request.WithContext(logger.WithLogFields(c.Request.Context(), fields))

		c.Next()

		status := c.Writer.Status()
		ctx := c.Request.Context()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(ctx, "request error", attrs...)
		default:
			slog.InfoContext(ctx, "request", attrs...)
		}
	}
}
