package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/seat-reservation-engine/internal/config"
	"github.com/smarttransit/seat-reservation-engine/internal/utils"
	"github.com/smarttransit/seat-reservation-engine/pkg/metrics"
)

// RateDecision is the outcome of taking one token from a bucket
type RateDecision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// TokenBucket takes one token from the bucket identified by key
type TokenBucket interface {
	Take(ctx context.Context, key string) (RateDecision, error)
}

var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// RedisTokenBucket keeps bucket state in Redis so limits hold across replicas
type RedisTokenBucket struct {
	client redis.Scripter
	cfg    config.RateLimitConfig
	now    func() time.Time
}

// NewRedisTokenBucket creates a RedisTokenBucket
func NewRedisTokenBucket(client redis.Scripter, cfg config.RateLimitConfig) *RedisTokenBucket {
	return &RedisTokenBucket{client: client, cfg: cfg, now: time.Now}
}

// Take runs the bucket script atomically for key
func (b *RedisTokenBucket) Take(ctx context.Context, key string) (RateDecision, error) {
	vals, err := tokenBucketScript.Run(ctx, b.client, []string{key},
		b.now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return RateDecision{}, fmt.Errorf("token bucket script: %w", err)
	}
	if len(vals) != 3 {
		return RateDecision{}, fmt.Errorf("token bucket script returned %d values", len(vals))
	}
	return RateDecision{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// RateLimit limits requests per user and route. Requests pass through when
// the bucket store fails.
func RateLimit(bucket TokenBucket, cfg config.RateLimitConfig, m *metrics.Metrics, logger *logrus.Logger) gin.HandlerFunc {
	if !cfg.Enabled || bucket == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := rateLimitKey(cfg.Prefix, c)

		decision, err := bucket.Take(c.Request.Context(), key)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

		if !decision.Allowed {
			secs := int(math.Ceil(decision.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			m.RateLimited.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too_many_requests",
				"message":     "Too many booking requests, please slow down",
				"code":        "RATE_LIMITED",
				"retry_after": secs,
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey buckets authenticated callers by user, anonymous ones by IP
func rateLimitKey(prefix string, c *gin.Context) string {
	parts := []string{prefix}
	if userCtx, ok := GetUserContext(c); ok {
		parts = append(parts, "user", userCtx.UserID.String())
	} else {
		parts = append(parts, "ip", utils.GetRealIP(c))
	}
	parts = append(parts, "route", c.Request.Method+" "+c.FullPath())
	return strings.Join(parts, ":")
}
