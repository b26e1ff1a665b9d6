package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type hashStore interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field string, value any) error
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// RedisIndex keeps the index of one ledger instance in a single Redis hash.
type RedisIndex struct {
	client  hashStore
	hashKey string
}

// NewRedisIndex binds an index to hashKey (see redis.Client.LedgerIndexKey).
func NewRedisIndex(client hashStore, hashKey string) (*RedisIndex, error) {
	if client == nil {
		return nil, errors.New("redis client required for index")
	}
	if hashKey == "" {
		return nil, errors.New("index hash key is required")
	}
	return &RedisIndex{client: client, hashKey: hashKey}, nil
}

func (r *RedisIndex) Lookup(ctx context.Context, key string) (int, bool, error) {
	raw, err := r.client.HGet(ctx, r.hashKey, key)
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("hget %s: %w", key, err)
	}
	entry, ok := decodeEntry(raw)
	if !ok {
		return 0, false, nil
	}
	return entry.Position, true, nil
}

func (r *RedisIndex) Upsert(ctx context.Context, key string, position int, at time.Time) error {
	if err := r.client.HSet(ctx, r.hashKey, key, encodeEntry(position, at)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Entries returns every entry. Malformed values are reported with Position 0.
func (r *RedisIndex) Entries(ctx context.Context) (map[string]Entry, error) {
	all, err := r.client.HGetAll(ctx, r.hashKey)
	if err != nil {
		return nil, fmt.Errorf("hgetall: %w", err)
	}
	out := make(map[string]Entry, len(all))
	for k, raw := range all {
		entry, _ := decodeEntry(raw)
		out[k] = entry
	}
	return out, nil
}

func (r *RedisIndex) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.hashKey, keys...); err != nil {
		return fmt.Errorf("hdel: %w", err)
	}
	return nil
}
