package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryWithLog replaces gin's default recovery with one that logs the
// panic through zap instead of writing to stderr, and returns a bare
// JSON error body instead of gin's HTML/plaintext default. The admin
// surface (SPEC_FULL §6) is the only HTTP entry point in this repo, so
// a panicking handler there must not take the process down.
func RecoveryWithLog() gin.HandlerFunc {
	log := zap.L()
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered in admin handler",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
