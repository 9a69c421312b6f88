package throttle

import (
	"context"
	"time"
)

// DefaultChunk is the longest uninterrupted wait between two progress reports.
const DefaultChunk = 2 * time.Second

// Progress is called before every chunk of a long wait with the time still left.
type Progress func(label string, remaining time.Duration)

// Sleeper waits in chunks so long backoffs stay observable and cancellable.
type Sleeper struct {
	clock    Clock
	chunk    time.Duration
	progress Progress
}

// NewSleeper returns a sleeper driven by clock. A nil clock means the wall
// clock, a nil progress callback is a no-op.
func NewSleeper(clock Clock, progress Progress) *Sleeper {
	if clock == nil {
		clock = RealClock()
	}

	return &Sleeper{
		clock:    clock,
		chunk:    DefaultChunk,
		progress: progress,
	}
}

// Clock returns the clock the sleeper waits on.
func (s *Sleeper) Clock() Clock {
	if s == nil || s.clock == nil {
		return RealClock()
	}
	return s.clock
}

// Sleep blocks for d. Waits longer than one chunk are split and progress is
// reported at each chunk boundary. It returns early with ctx.Err() when the
// context is done.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration, label string) error {
	if d <= 0 {
		return nil
	}

	clock := s.Clock()
	chunk := DefaultChunk
	if s != nil && s.chunk > 0 {
		chunk = s.chunk
	}

	if d <= chunk {
		return wait(ctx, clock, d)
	}

	for remaining := d; remaining > 0; {
		if s != nil && s.progress != nil {
			s.progress(label, remaining)
		}

		step := min(chunk, remaining)
		if err := wait(ctx, clock, step); err != nil {
			return err
		}
		remaining -= step
	}

	return nil
}

func wait(ctx context.Context, clock Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
