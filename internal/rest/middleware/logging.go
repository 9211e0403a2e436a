package middleware

import (
	"time"

	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/types"
	"github.com/gin-gonic/gin"
)

// LoggingMiddleware logs every HTTP request with its status, latency and
// request/tenant identifiers, tiered by status class.
func LoggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		fields := []interface{}{
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"query", raw,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if requestID := types.GetRequestID(c.Request.Context()); requestID != "" {
			fields = append(fields, "request_id", requestID)
		}
		if tenantID := types.GetTenantID(c.Request.Context()); tenantID != "" {
			fields = append(fields, "tenant_id", tenantID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		statusCode := c.Writer.Status()
		switch {
		case statusCode >= 500:
			log.Errorw("HTTP_REQUEST_ERROR", fields...)
		case statusCode >= 400:
			log.Warnw("HTTP_REQUEST_WARNING", fields...)
		default:
			log.Infow("HTTP_REQUEST_INFO", fields...)
		}
	}
}
