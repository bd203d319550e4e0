package middleware

import (
	"net/http"
	"strconv"
	"time"

	"convtrack/api/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit guards an ingestion route with the token-bucket limiter. keyFn
// derives the bucket identifier from the request (client IP for the event
// endpoint, the :source param for webhooks).
func RateLimit(limiter *ratelimit.Limiter, limit int, window time.Duration, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := limiter.Check(keyFn(c), limit, window)

		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retryAfterSec := int(res.RetryAfter / time.Second)
			if retryAfterSec < 1 {
				retryAfterSec = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfterSec))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":        "Rate limit exceeded",
				"retryAfterMs": res.RetryAfter.Milliseconds(),
			})
			return
		}
		c.Next()
	}
}
