package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelmondragon/clinicops-backend/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestCompareAndDeleteOnlyRemovesOwnedKey(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	ok, err := client.SetNX(ctx, "clinicops:ledger:default:lock", "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to succeed, ok=%v err=%v", ok, err)
	}

	deleted, err := client.CompareAndDelete(ctx, "clinicops:ledger:default:lock", "owner-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Fatalf("foreign owner must not release the lock")
	}

	deleted, err = client.CompareAndDelete(ctx, "clinicops:ledger:default:lock", "owner-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Fatalf("owner should release the lock")
	}
	if _, err := client.Get(ctx, "clinicops:ledger:default:lock"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after release, got %v", err)
	}
}

func TestHashHelpersAgainstMiniredis(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := Wrap(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	key := client.LedgerIndexKey("clinic-a")
	require.NoError(t, client.HSet(ctx, key, "pay_1", "3|100"))
	require.NoError(t, client.HSet(ctx, key, "pay_2", "4|200"))

	got, err := client.HGet(ctx, key, "pay_1")
	require.NoError(t, err)
	require.Equal(t, "3|100", got)

	_, err = client.HGet(ctx, key, "missing")
	require.ErrorIs(t, err, redis.Nil)

	require.NoError(t, client.HDel(ctx, key, "pay_2"))
	all, err := client.HGetAll(ctx, key)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"pay_1": "3|100"}, all)

	lockKey := client.LedgerLockKey("clinic-a")
	ok, err := client.SetNX(ctx, lockKey, "owner", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	released, err := client.CompareAndDelete(ctx, lockKey, "owner")
	require.NoError(t, err)
	require.True(t, released)
	require.False(t, srv.Exists(lockKey))
}

func TestZeroClientReturnsNotInitialized(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on zero client should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.LedgerIndexKey("clinic-a"); got != "clinicops:ledger:clinic-a:index" {
		t.Fatalf("unexpected index key %s", got)
	}
	if got := client.LedgerLockKey(" clinic-a "); got != "clinicops:ledger:clinic-a:lock" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.CronLockKey("maintenance"); got != "clinicops:cron:maintenance:lock" {
		t.Fatalf("unexpected cron key %s", got)
	}
	if got := client.buildKey("ledger", "", "index"); got != "clinicops:ledger:index" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfigRequiresEndpoint(t *testing.T) {
	if _, err := optionsFromConfig(configWith("", "")); err == nil {
		t.Fatalf("expected error without url or address")
	}
	opts, err := optionsFromConfig(configWith("redis://localhost:6379/2", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 10 {
		t.Fatalf("unexpected options db=%d pool=%d", opts.DB, opts.PoolSize)
	}
}

type mockCmdable struct {
	data   map[string]string
	hashes map[string]map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:   make(map[string]string),
		hashes: make(map[string]map[string]string),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
		delete(m.hashes, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	v, ok := m.hashes[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (m *mockCmdable) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	for _, f := range fields {
		delete(m.hashes[key], f)
	}
	return redis.NewIntResult(int64(len(fields)), nil)
}

func (m *mockCmdable) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	out := map[string]string{}
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

// Eval only understands the release script.
func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script != releaseScript || len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unsupported script"))
	}
	if m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func configWith(url, addr string) config.RedisConfig {
	return config.RedisConfig{URL: url, Address: addr, PoolSize: 10, MinIdleConns: 2}
}
