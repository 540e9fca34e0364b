package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"go.uber.org/zap"
)

// Limiter is satisfied by *pkg.DistributedLimiter.
type Limiter interface {
	Allow(ctx context.Context) bool
}

// RateLimit rejects requests with 429 once the limiter denies them.
func RateLimit(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter.Allow(c.Request.Context()) {
			c.Next()
			return
		}
		traceID := c.GetString(pkg.TraceId)
		resp := pkg.ToErrorResponse(logger, traceID, pkg.NewAppError(pkg.ErrRateLimitedCode, pkg.ErrRateLimitedCode.Message, pkg.ErrRateLimitExceeded))
		c.AbortWithStatusJSON(resp.Status, resp)
	}
}
