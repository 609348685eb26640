// internal/middleware/ratelimit_middleware.go
package middleware

import (
	"math"
	"net/http"
	"strconv"

	"license-service/internal/metrics"
	"license-service/internal/pkg/ratelimit"
	"license-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimit throttles per client IP. When the limiter itself fails the
// request goes through; validation must not depend on redis being up.
func RateLimit(limiter ratelimit.Limiter, collector *metrics.Collector, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable, allowing request",
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if !decision.Allowed {
			secs := int(math.Ceil(decision.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			collector.RecordRateLimited()
			response.Fail(c, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}

		c.Next()
	}
}
