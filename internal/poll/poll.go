// Package poll holds the bounded wait primitives used for every DOM and tab
// wait: a condition poller and a cancellable sleep.
package poll

import (
	"context"
	"log/slog"
	"time"
)

// Condition reports whether the awaited state has been reached. Errors are
// treated as "not yet".
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it returns
// true or timeout elapses. It returns false with a nil error on timeout and
// only returns an error when ctx is done.
func Until(ctx context.Context, interval, timeout time.Duration, cond Condition) (bool, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			slog.Debug("poll condition error", "error", err)
		}
		if ok && err == nil {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
