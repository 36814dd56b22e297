package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const attemptsKeyPrefix = "login:attempts:"

// LoginThrottle implements repository.LoginThrottle with a Redis counter per
// identifier. The counter expires one lockout window after the first failure.
type LoginThrottle struct {
	client      *redis.Client
	maxAttempts int64
	lockout     time.Duration
}

// NewLoginThrottle creates a throttle that locks an identifier after
// maxAttempts failures for the lockout window.
func NewLoginThrottle(client *redis.Client, maxAttempts int, lockout time.Duration) *LoginThrottle {
	return &LoginThrottle{
		client:      client,
		maxAttempts: int64(maxAttempts),
		lockout:     lockout,
	}
}

// Locked reports whether identifier has used up its attempts.
func (t *LoginThrottle) Locked(ctx context.Context, identifier string) (bool, time.Duration, error) {
	key := attemptsKey(identifier)

	count, err := t.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("redis get login attempts: %w", err)
	}
	if count < t.maxAttempts {
		return false, 0, nil
	}

	ttl, err := t.client.PTTL(ctx, key).Result()
	if err != nil {
		return true, t.lockout, fmt.Errorf("redis pttl login attempts: %w", err)
	}
	if ttl < 0 {
		ttl = t.lockout
	}
	return true, ttl, nil
}

// RecordFailure increments the failure counter and starts the window on the
// first failure.
func (t *LoginThrottle) RecordFailure(ctx context.Context, identifier string) (int64, error) {
	key := attemptsKey(identifier)

	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr login attempts: %w", err)
	}
	if count == 1 {
		if err := t.client.PExpire(ctx, key, t.lockout).Err(); err != nil {
			return count, fmt.Errorf("redis expire login attempts: %w", err)
		}
	}
	return count, nil
}

// Reset removes the failure counter.
func (t *LoginThrottle) Reset(ctx context.Context, identifier string) error {
	if err := t.client.Del(ctx, attemptsKey(identifier)).Err(); err != nil {
		return fmt.Errorf("redis del login attempts: %w", err)
	}
	return nil
}

func attemptsKey(identifier string) string {
	return attemptsKeyPrefix + strings.ToLower(strings.TrimSpace(identifier))
}
