// Package ratelimit provides a Redis-backed sliding-window limiter keyed by
// requester identity. Sensitive operations (login, registration, password
// change) get a tight window; everything else a loose one.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var slidingWindowScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, ARGV[1])
local count = redis.call("ZCARD", KEYS[1])
if count < tonumber(ARGV[2]) then
  redis.call("ZADD", KEYS[1], ARGV[3], ARGV[4])
  redis.call("PEXPIRE", KEYS[1], ARGV[5])
  return 1
end
return 0
`)

// SlidingWindowLimiter limits requests per key inside a rolling time window.
// It is Redis-backed so the cap holds across server replicas.
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration

	redisClient *redis.Client
	redisPrefix string
}

// NewSlidingWindowLimiter creates a limiter against the given Redis.
func NewSlidingWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*SlidingWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "docvault:ratelimit"
	}
	return &SlidingWindowLimiter{
		limit:  limit,
		window: window,
		redisClient: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		redisPrefix: prefix,
	}, nil
}

// Allow returns true when the key is within quota.
// On Redis failures, it fails closed and returns false.
func (l *SlidingWindowLimiter) Allow(key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := time.Now().UTC()
	nowMs := now.UnixMilli()
	windowMs := l.window.Milliseconds()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), nowMs)
	redisKey := l.redisPrefix + ":" + key
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := slidingWindowScript.Run(ctx, l.redisClient,
		[]string{redisKey},
		nowMs-windowMs, l.limit, nowMs, member, windowMs,
	).Int64()
	if err != nil {
		return false
	}
	return res == 1
}
