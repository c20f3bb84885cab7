package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// fixedWindowScript increments the window counter and arms its expiry on
// the first hit, atomically.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisRateLimiter is a fixed-window limiter shared by every replica through
// Redis. When Redis is unreachable requests are let through (fail open):
// losing rate limiting briefly is preferable to refusing bookings.
type RedisRateLimiter struct {
	limit  int64
	window time.Duration
	prefix string
	keyFn  KeyFunc
	incr   func(ctx context.Context, key string, window time.Duration) (int64, error)
}

// NewRedisRateLimiter allows limit requests per window per key.
func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string, keyFn KeyFunc) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "rl"
	}
	if keyFn == nil {
		keyFn = KeyByClientIP()
	}
	rl := &RedisRateLimiter{limit: int64(limit), window: window, prefix: prefix, keyFn: keyFn}
	rl.incr = func(ctx context.Context, key string, window time.Duration) (int64, error) {
		return scriptIncr(ctx, rdb, key, window)
	}
	return rl
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Handler enforces the shared limit.
func (rl *RedisRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		// Key by window so a stuck TTL can never pin a client forever.
		slot := time.Now().UnixMilli() / rl.window.Milliseconds()
		key := rl.prefix + ":" + rl.keyFn(c) + ":" + strconv.FormatInt(slot, 10)

		n, err := rl.incr(c.Request.Context(), key, rl.window)
		if err != nil {
			log.Warn().Err(err).Msg("redis rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if n > rl.limit {
			tooManyRequests(c, rl.window-time.Duration(time.Now().UnixMilli()%rl.window.Milliseconds())*time.Millisecond)
			return
		}
		c.Next()
	}
}

func scriptIncr(ctx context.Context, rdb redis.Scripter, key string, window time.Duration) (int64, error) {
	res, err := fixedWindowScript.Run(ctx, rdb, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result %T", res)
	}
}
