// Package ratelimiter implements a Redis-backed token bucket keyed per user.
package ratelimiter

import (
	"context"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-interview-coach/internal/observability"
)

// Limiter decides whether a caller may spend cost tokens right now.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// BucketConfig shapes one token bucket.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

// PerMinute builds a bucket that refills cfg tokens per minute with equal burst
// capacity. A non-positive rate yields a zero config, which fails open.
func PerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{
		Capacity:   int64(perMinute),
		RefillRate: float64(perMinute) / 60.0,
	}
}

// RedisLuaLimiter applies one shared BucketConfig to dynamically created
// per-caller keys. The check-and-spend runs as a single Lua script so
// concurrent requests for the same key never race. A nil limiter or nil
// client fails open: conversation availability outranks throttling accuracy.
type RedisLuaLimiter struct {
	redis  *redis.Client
	cfg    BucketConfig
	script *redis.Script
}

// NewRedisLuaLimiter returns a limiter over rdb, or nil when rdb is nil.
func NewRedisLuaLimiter(rdb *redis.Client, cfg BucketConfig) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	return &RedisLuaLimiter{
		redis:  rdb,
		cfg:    cfg,
		script: redis.NewScript(luaTokenBucketScript),
	}
}

// Bucket keys expire after sitting full-and-idle long enough, so per-user
// keys do not accumulate forever.
const bucketTTLSeconds = 2 * 3600

const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] ~= false and data[1] ~= nil then
  tokens = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  last_refill = tonumber(data[2])
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)
last_refill = now

local allowed = 0
local retry_after = 0

if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  local shortage = cost - tokens
  if refill_rate > 0 then
    retry_after = shortage / refill_rate
  end
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, ttl)

return { allowed, tokens, retry_after }
`

// Allow spends cost tokens from key's bucket. When the bucket is empty it
// returns allowed=false with the wait until enough tokens refill. Redis
// errors are logged and fail open.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	if l.cfg.Capacity <= 0 || l.cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	nowSec := float64(time.Now().UnixNano()) / 1e9
	redisKey := "rate:" + key
	res, err := l.script.Run(ctx, l.redis, []string{redisKey}, l.cfg.Capacity, l.cfg.RefillRate, nowSec, cost, bucketTTLSeconds).Result()
	if err != nil {
		observability.LoggerFromContext(ctx).Error("rate limiter script error", "key", key, "error", err)
		return true, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		observability.LoggerFromContext(ctx).Error("rate limiter unexpected script result", "key", key, "result", res)
		return true, 0, nil
	}

	allowed := toInt64(vals[0]) == 1
	retryAfter := time.Duration(toFloat64(vals[2]) * float64(time.Second))
	return allowed, retryAfter, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return math.NaN()
	}
}
