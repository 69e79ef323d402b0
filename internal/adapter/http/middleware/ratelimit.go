package middleware

import (
	"strconv"
	"time"

	redisStore "flow402/internal/adapter/storage/redis"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the rate limits applied per route group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"deduct": {Limit: 100, Window: time.Minute},
		"topup":  {Limit: 20, Window: time.Minute},
	}
}

// RateLimiter creates rate-limiting middleware scoped to a single tenant
// (the process serves exactly one tenant, per the gateway scope guard) and
// route group. This is ambient abuse-protection hardening, not a spec
// feature, so it fails open (logs and allows) on Redis errors.
func RateLimiter(store *redisStore.RateLimitStore, tenantID, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := store.Allow(c.Request.Context(), tenantID, group, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(429, gin.H{"ok": false, "error": "rate_limit_exceeded"})
			return
		}

		c.Next()
	}
}
