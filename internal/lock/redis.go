package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLeaseTTL   = 30 * time.Second
	defaultRetryDelay = 25 * time.Millisecond
)

// redisStore defines the operations used by RedisGuard.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// RedisGuard implements Guard across processes using SETNX with a lease TTL.
// The lease bounds how long a crashed holder can block the instance.
type RedisGuard struct {
	client     redisStore
	key        string
	ttl        time.Duration
	wait       time.Duration
	retryDelay time.Duration
}

// RedisGuardParams configure a RedisGuard.
type RedisGuardParams struct {
	Client     redisStore
	Key        string
	LeaseTTL   time.Duration
	Wait       time.Duration
	RetryDelay time.Duration
}

// NewRedisGuard constructs a Redis-backed guard.
func NewRedisGuard(p RedisGuardParams) (*RedisGuard, error) {
	if p.Client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if p.Key == "" {
		return nil, errors.New("lock key is required")
	}
	if p.LeaseTTL <= 0 {
		p.LeaseTTL = defaultLeaseTTL
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = defaultRetryDelay
	}
	return &RedisGuard{
		client:     p.Client,
		key:        p.Key,
		ttl:        p.LeaseTTL,
		wait:       p.Wait,
		retryDelay: p.RetryDelay,
	}, nil
}

func (g *RedisGuard) Acquire(ctx context.Context) (func(context.Context) error, error) {
	owner := uuid.NewString()
	deadline := time.Now().Add(g.wait)
	for {
		ok, err := g.client.SetNX(ctx, g.key, owner, g.ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx: %w", err)
		}
		if ok {
			return g.releaser(owner), nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		delay := g.retryDelay
		if delay > remaining {
			delay = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// releaser frees the lock only while owner still holds it.
func (g *RedisGuard) releaser(owner string) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, err := g.client.CompareAndDelete(ctx, g.key, owner); err != nil {
			return fmt.Errorf("delete lock: %w", err)
		}
		return nil
	}
}
