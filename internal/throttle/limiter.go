package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Window is the trailing interval the limiter counts calls in.
const Window = time.Minute

// Limiter admits at most maxPerMinute calls in any trailing Window. Waiting
// callers hold the lock so admissions stay ordered.
type Limiter struct {
	mu           sync.Mutex
	maxPerMinute int
	calls        []time.Time
	sleeper      *Sleeper
	logger       *zap.Logger
}

// NewLimiter creates a limiter. maxPerMinute <= 0 disables limiting.
func NewLimiter(maxPerMinute int, sleeper *Sleeper, logger *zap.Logger) *Limiter {
	if sleeper == nil {
		sleeper = NewSleeper(nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Limiter{
		maxPerMinute: maxPerMinute,
		sleeper:      sleeper,
		logger:       logger,
	}
}

// Admit returns once another call fits into the window and records it.
func (l *Limiter) Admit(ctx context.Context) error {
	if l == nil || l.maxPerMinute <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	clock := l.sleeper.Clock()
	now := clock.Now()
	l.prune(now)

	if len(l.calls) >= l.maxPerMinute {
		wait := Window - now.Sub(l.calls[0]) + time.Second
		if wait > 0 {
			l.logger.Info("rate limiting outbound calls",
				zap.Duration("wait", wait),
				zap.Int("max_per_minute", l.maxPerMinute),
			)

			label := fmt.Sprintf("staying under %d requests/minute", l.maxPerMinute)
			if err := l.sleeper.Sleep(ctx, wait, label); err != nil {
				return err
			}
			now = clock.Now()
			l.prune(now)
		}
	}

	l.calls = append(l.calls, now)
	return nil
}

// InWindow reports how many recorded calls are still inside the window.
func (l *Limiter) InWindow() int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.sleeper.Clock().Now())
	return len(l.calls)
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-Window)
	idx := 0
	for idx < len(l.calls) && !l.calls[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.calls = append(l.calls[:0], l.calls[idx:]...)
	}
}
