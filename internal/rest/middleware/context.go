package middleware

import (
	"github.com/duespay/duespay/internal/types"
	"github.com/gin-gonic/gin"
)

// RequestContextMiddleware stamps each request with an ID and carries the
// tenant and environment headers into the request context.
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		requestID := c.GetHeader(types.HeaderRequestID)
		if requestID == "" {
			requestID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REQUEST)
		}
		ctx = types.SetRequestID(ctx, requestID)

		if tenantID := c.GetHeader(types.HeaderTenantID); tenantID != "" {
			ctx = types.SetTenantID(ctx, tenantID)
		}
		if environmentID := c.GetHeader(types.HeaderEnvironment); environmentID != "" {
			ctx = types.SetEnvironmentID(ctx, environmentID)
		}

		c.Header(types.HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
