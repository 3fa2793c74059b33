package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// logRequest emits one structured line per API request.
func logRequest(c *gin.Context, elapsed time.Duration) {
	slog.Info("HTTP request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"elapsed_ms", elapsed.Milliseconds())
}
