package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pkgredis "github.com/angelmondragon/clinicops-backend/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalGuardTimesOut(t *testing.T) {
	g := NewLocalGuard(20 * time.Millisecond)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	_, err = g.Acquire(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, release(context.Background()))
	require.NoError(t, release(context.Background()), "double release is a no-op")

	release, err = g.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}

func TestLocalGuardHonorsContext(t *testing.T) {
	g := NewLocalGuard(time.Minute)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithLockSerializesCriticalSections(t *testing.T) {
	g := NewLocalGuard(5 * time.Second)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
		total   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(context.Background(), g, func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				total++
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 20, total)
}

func TestWithLockReleasesOnError(t *testing.T) {
	g := NewLocalGuard(10 * time.Millisecond)
	boom := errors.New("boom")
	err := WithLock(context.Background(), g, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	err = WithLock(context.Background(), g, func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	g := NewLocalGuard(10 * time.Millisecond)
	func() {
		defer func() { _ = recover() }()
		_ = WithLock(context.Background(), g, func(context.Context) error { panic("boom") })
	}()
	require.NoError(t, WithLock(context.Background(), g, func(context.Context) error { return nil }))
}

func TestWithLockPropagatesTimeout(t *testing.T) {
	g := NewLocalGuard(5 * time.Millisecond)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release(context.Background())

	called := false
	err = WithLock(context.Background(), g, func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, ErrTimeout)
	assert.False(t, called)
}

func newRedisGuards(t *testing.T, wait time.Duration) (*RedisGuard, *RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := pkgredis.Wrap(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	params := RedisGuardParams{
		Client:     client,
		Key:        client.LedgerLockKey("clinic-a"),
		LeaseTTL:   time.Minute,
		Wait:       wait,
		RetryDelay: 5 * time.Millisecond,
	}
	a, err := NewRedisGuard(params)
	require.NoError(t, err)
	b, err := NewRedisGuard(params)
	require.NoError(t, err)
	return a, b, srv
}

func TestRedisGuardExcludesOtherHolders(t *testing.T) {
	ctx := context.Background()
	a, b, srv := newRedisGuards(t, 30*time.Millisecond)

	release, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, srv.Exists("clinicops:ledger:clinic-a:lock"))

	_, err = b.Acquire(ctx)
	require.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, release(ctx))
	assert.False(t, srv.Exists("clinicops:ledger:clinic-a:lock"))

	releaseB, err := b.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, releaseB(ctx))
}

func TestRedisGuardWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newRedisGuards(t, 2*time.Second)

	release, err := a.Acquire(ctx)
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = release(context.Background())
	}()

	releaseB, err := b.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, releaseB(ctx))
}

func TestRedisGuardExpiredLeaseIsNotReleasedByFormerOwner(t *testing.T) {
	ctx := context.Background()
	a, b, srv := newRedisGuards(t, 10*time.Millisecond)

	staleRelease, err := a.Acquire(ctx)
	require.NoError(t, err)
	srv.FastForward(2 * time.Minute)

	release, err := b.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, staleRelease(ctx))
	assert.True(t, srv.Exists("clinicops:ledger:clinic-a:lock"), "former owner must not delete the new lease")
	require.NoError(t, release(ctx))
}

func TestNewRedisGuardValidates(t *testing.T) {
	_, err := NewRedisGuard(RedisGuardParams{Key: "k"})
	require.Error(t, err)
	_, err = NewRedisGuard(RedisGuardParams{Client: pkgredis.Wrap(redis.NewClient(&redis.Options{Addr: "localhost:0"}))})
	require.Error(t, err)
}
