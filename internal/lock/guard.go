package lock

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is returned when the lock could not be acquired within the wait bound.
var ErrTimeout = errors.New("lock: acquire timed out")

// Guard provides mutual exclusion for one ledger instance.
type Guard interface {
	// Acquire blocks until the lock is held, the wait bound elapses
	// (ErrTimeout) or ctx is done. The returned func releases the lock.
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// WithLock runs fn while holding g and always releases it afterwards.
func WithLock(ctx context.Context, g Guard, fn func(ctx context.Context) error) (err error) {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// release even when ctx is already canceled
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil && err == nil {
			err = fmt.Errorf("release lock: %w", relErr)
		}
	}()
	return fn(ctx)
}
