package lock

import (
	"context"
	"time"
)

// LocalGuard is a single-process Guard backed by a one-slot channel.
type LocalGuard struct {
	slot chan struct{}
	wait time.Duration
}

// NewLocalGuard builds a guard that waits at most wait for the lock.
func NewLocalGuard(wait time.Duration) *LocalGuard {
	return &LocalGuard{slot: make(chan struct{}, 1), wait: wait}
}

func (g *LocalGuard) Acquire(ctx context.Context) (func(context.Context) error, error) {
	timer := time.NewTimer(g.wait)
	defer timer.Stop()
	select {
	case g.slot <- struct{}{}:
		released := false
		return func(context.Context) error {
			if released {
				return nil
			}
			released = true
			<-g.slot
			return nil
		}, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
