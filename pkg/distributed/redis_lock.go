package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/doubles-rating/pkg/logger"
)

// DefaultAppendLockKey is shared by every server writing to the same history.
const DefaultAppendLockKey = "doubles-rating:ledger:append"

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// AppendLock serializes history appends across server instances with a
// Redis SET NX key. Each acquisition writes a fresh owner token, so a holder
// whose TTL ran out can never release a lock taken over by someone else.
type AppendLock struct {
	client        *redis.Client
	key           string
	ttl           time.Duration
	maxRetries    int
	retryInterval time.Duration
}

// NewAppendLock Redis 기반 append 락 생성
func NewAppendLock(client *redis.Client, ttl time.Duration) *AppendLock {
	return &AppendLock{
		client:        client,
		key:           DefaultAppendLockKey,
		ttl:           ttl,
		maxRetries:    50,
		retryInterval: 20 * time.Millisecond,
	}
}

// WithKey returns a copy of l that locks key instead of the default.
func (l *AppendLock) WithKey(key string) *AppendLock {
	out := *l
	out.key = key
	return &out
}

// Acquire blocks until the lock is taken, the retries run out or ctx ends.
// The returned function releases the lock.
func (l *AppendLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	owner := uuid.NewString()

	for i := 0; i < l.maxRetries; i++ {
		ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to set lock key: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				return l.release(ctx, owner)
			}, nil
		}

		// 재시도 전 대기
		if i < l.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.retryInterval):
			}
		}
	}

	logger.Warn("Append lock still held after retries", "key", l.key, "retries", l.maxRetries)
	return nil, ErrLockNotAcquired
}

func (l *AppendLock) release(ctx context.Context, owner string) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Holder returns the current owner token, or "" when the lock is free.
func (l *AppendLock) Holder(ctx context.Context) (string, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
