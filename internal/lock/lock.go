package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrNotHeld = errors.New("lock no longer held")

// Lock guards a single campaign's dispatch run. A Lock value belongs to one
// run; use a fresh one per attempt.
type Lock interface {
	// Acquire reports whether the lock was taken. It never blocks waiting
	// for the current holder.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Extender is implemented by locks that expire unless refreshed.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// Factory builds the lock for one campaign id.
type Factory func(campaignID string) Lock

func Key(campaignID string) string { return "campaign:" + campaignID }

// Keepalive refreshes l every ttl/3 until the returned stop func is called.
// Locks that do not expire are left alone.
func Keepalive(ctx context.Context, l Lock, ttl time.Duration) (stop func()) {
	ext, ok := l.(Extender)
	if !ok || ttl <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(ttl / 3)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := ext.Extend(ctx, ttl); err != nil && ctx.Err() == nil {
					slog.Warn("run lock extend failed", "err", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
