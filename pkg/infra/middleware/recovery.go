// Package middleware provides the gin middlewares used by the docmind HTTP server.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/pkg/utils/errors"
	"github.com/kart-io/docmind/pkg/utils/response"
)

// RecoveryConfig defines the config for Recovery middleware.
type RecoveryConfig struct {
	// EnableStackTrace includes stack trace in error response (for development).
	EnableStackTrace bool

	// OnPanic is called when a panic occurs.
	OnPanic func(c *gin.Context, err interface{}, stack []byte)
}

// DefaultRecoveryConfig is the default Recovery middleware config.
var DefaultRecoveryConfig = RecoveryConfig{}

// Recovery returns a middleware that recovers from panics.
// It converts panics to JSON error responses using the error code system.
func Recovery() gin.HandlerFunc {
	return RecoveryWithConfig(DefaultRecoveryConfig)
}

// RecoveryWithConfig returns a Recovery middleware with custom config.
func RecoveryWithConfig(config RecoveryConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			logger.Errorw("panic recovered",
				"path", c.Request.URL.Path,
				"request_id", GetRequestID(c),
				"panic", fmt.Sprint(r),
			)
			if config.OnPanic != nil {
				config.OnPanic(c, r, stack)
			}

			msg := fmt.Sprintf("panic: %v", r)
			if config.EnableStackTrace {
				msg = fmt.Sprintf("panic: %v\n%s", r, string(stack))
			}
			resp := response.Err(errors.ErrInternal.WithMessage(msg)).WithRequestID(GetRequestID(c))
			c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
		}()
		c.Next()
	}
}
