package stream

import (
	"context"
	"time"
)

// PeriodFromRate converts a target rate in Hz into the pause between two emissions
func PeriodFromRate(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / hz)
}

// Scheduler paces a fixed number of emissions at a fixed period.
//
// Pacing is best effort: Period is a lower bound on the gap between two
// emissions, the actual gap also includes scheduling overhead.
type Scheduler struct {
	Count  int
	Period time.Duration
	Clock  Clock
}

// Run calls emit for every index in [0, Count) and sleeps Period between calls.
// There is no pause after the last emission. Run stops early and returns the
// context error if ctx is cancelled.
func (s Scheduler) Run(ctx context.Context, emit func(i int)) error {
	clock := s.Clock
	if clock == nil {
		clock = SystemClock
	}

	for i := 0; i < s.Count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		emit(i)

		if i == s.Count-1 {
			break
		}
		if err := clock.Sleep(ctx, s.Period); err != nil {
			return err
		}
	}

	return nil
}
