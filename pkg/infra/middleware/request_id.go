package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderXRequestID is the header carrying the request ID.
const HeaderXRequestID = "X-Request-ID"

// ContextKeyRequestID is the gin.Context key holding the request ID.
const ContextKeyRequestID = "request_id"

// RequestID returns a middleware that adds a unique request ID to each request.
// 已有的 X-Request-ID 请求头原样沿用。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderXRequestID, requestID)
		c.Set(ContextKeyRequestID, requestID)
		c.Next()
	}
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}
