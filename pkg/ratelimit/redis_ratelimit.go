package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua 스크립트로 원자적 토큰 버킷 연산
var tokenBucketScript = redis.NewScript(`
	local tokens_key = KEYS[1] .. ":tokens"
	local timestamp_key = KEYS[1] .. ":timestamp"
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local tokens = tonumber(redis.call('GET', tokens_key))
	local last_update = tonumber(redis.call('GET', timestamp_key))
	if tokens == nil or last_update == nil then
		tokens = limit
		last_update = now
	end

	local elapsed = math.max(0, now - last_update)
	local new_tokens = math.min(limit, tokens + elapsed * limit / window)

	local allowed = 0
	if new_tokens >= 1 then
		new_tokens = new_tokens - 1
		allowed = 1
	end

	redis.call('SET', tokens_key, tostring(new_tokens), 'PX', window * 2)
	redis.call('SET', timestamp_key, now, 'PX', window * 2)
	return allowed
`)

// RedisLimiter Redis 기반 분산 Rate Limiter (Token Bucket 알고리즘)
// Every server sharing the Redis instance draws from the same buckets.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
}

func NewRedisLimiter(client *redis.Client, keyPrefix string, limit int, window time.Duration) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixMilli()
	allowed, err := tokenBucketScript.Run(ctx, r.client, []string{r.keyPrefix + key},
		r.limit, r.window.Milliseconds(), now).Int()
	if err != nil {
		return false, fmt.Errorf("redis script execution failed: %w", err)
	}
	return allowed == 1, nil
}

// Reset 특정 키의 Rate Limit 초기화
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	redisKey := r.keyPrefix + key

	pipe := r.client.Pipeline()
	pipe.Del(ctx, redisKey+":tokens")
	pipe.Del(ctx, redisKey+":timestamp")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
