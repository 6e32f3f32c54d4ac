package stream

import (
	"context"
	"time"
)

// Clock abstracts wall time and suspension so that sessions can be tested
// without real sleeps.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time

	// Sleep suspends the caller for at least d, or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the default Clock backed by the time package
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NowNanos returns the clock's wall time as nanoseconds since the Unix epoch.
// Resolution is one millisecond; the value seeds sample timestamps and is not
// meant for measuring intervals.
func NowNanos(c Clock) uint64 {
	ms := c.Now().UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms) * uint64(time.Millisecond)
}
