package ratelimit

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"authgate/internal/shared/utils/response"
	"authgate/pkg/logger"
)

// Middleware enforces the limit for the given type. The caller supplies
// the client-IP resolver so every limiter keys on the same address the
// rest of the stack sees.
func Middleware(rateLimiter *RateLimiter, limitType RateLimitType, clientIP func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := clientIP(c)

		result, err := rateLimiter.IsAllowed(c.Request.Context(), ip, limitType)
		if err != nil {
			// Redis being down should not lock everyone out.
			logger.GetDefault().WithError(err).Warn("rate limit check failed, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetTime))

		if !result.Allowed {
			logger.GetDefault().LogRateLimitExceeded(c.Request.Context(), ip, string(limitType))
			response.RespondError(c, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}
