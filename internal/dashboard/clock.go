package dashboard

import (
	"context"
	"time"
)

// Clock supplies timers so the sync delay can be driven by tests.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// RealClock returns a Clock backed by the runtime timer.
func RealClock() Clock {
	return realClock{}
}

// delay blocks until d has elapsed on clock or ctx is done.
func delay(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
