// Package retry wraps a single remote call with bounded exponential backoff
// that prefers provider supplied retry hints on 429 responses.
package retry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/throttle"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 60 * time.Second

	minDelay = time.Second
)

// Config bounds the retry schedule. MaxRetries is the total number of attempts.
type Config struct {
	MaxRetries   int           `mapstructure:"max-retries" validate:"gte=0"`
	InitialDelay time.Duration `mapstructure:"initial-delay" validate:"gte=0"`
	MaxDelay     time.Duration `mapstructure:"max-delay" validate:"gte=0"`
}

// DefaultConfig returns three attempts starting at one second and capped at a minute.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < minDelay {
		c.MaxDelay = minDelay
	}
	return c
}

// Call performs one attempt of a remote request.
type Call func(ctx context.Context) (*http.Response, error)

// Orchestrator runs calls under the retry policy.
type Orchestrator struct {
	cfg     Config
	sleeper *throttle.Sleeper
	logger  *zap.Logger
}

// New creates an orchestrator. Zero config fields fall back to the defaults.
func New(cfg Config, sleeper *throttle.Sleeper, logger *zap.Logger) *Orchestrator {
	if sleeper == nil {
		sleeper = throttle.NewSleeper(nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		cfg:     cfg.withDefaults(),
		sleeper: sleeper,
		logger:  logger,
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Backoff returns min(initial*2^attempt, maxDelay) clamped to at least one second.
func (o *Orchestrator) Backoff(attempt int) time.Duration {
	delay := o.cfg.InitialDelay
	for i := 0; i < attempt && delay < o.cfg.MaxDelay; i++ {
		delay *= 2
	}
	return o.clamp(delay)
}

func (o *Orchestrator) clamp(d time.Duration) time.Duration {
	return max(minDelay, min(d, o.cfg.MaxDelay))
}

// Execute runs call until it succeeds with 200/201, returns a status that is
// not retried, or the attempts are used up. Responses with other statuses are
// handed back untouched for the caller to inspect. Exhaustion yields *Error.
func (o *Orchestrator) Execute(ctx context.Context, call Call) (*http.Response, error) {
	attempts := o.cfg.MaxRetries
	var last *Error

loop:
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := call(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			kind := classify(err)
			last = &Error{Kind: kind, Attempts: attempt + 1, Err: err}
			if attempt == attempts-1 {
				break loop
			}

			delay := o.Backoff(attempt)
			o.logger.Warn("request failed, retrying",
				zap.Error(err),
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", attempts),
			)

			if err := o.sleeper.Sleep(ctx, delay, o.label(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			return resp, nil
		case http.StatusTooManyRequests:
			delay, source := o.rateLimitDelay(resp, attempt)
			discard(resp)

			last = &Error{Kind: ErrRateLimited, Attempts: attempt + 1, StatusCode: resp.StatusCode}
			if attempt == attempts-1 {
				break loop
			}

			o.logger.Warn("rate limit reached, retrying",
				zap.Duration("delay", delay),
				zap.String("delay_source", source),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", attempts),
			)

			if err := o.sleeper.Sleep(ctx, delay, o.label(attempt)); err != nil {
				return nil, err
			}
		default:
			return resp, nil
		}
	}

	o.logger.Error("giving up after retries", zap.Error(last))
	return nil, last
}

func (o *Orchestrator) rateLimitDelay(resp *http.Response, attempt int) (time.Duration, string) {
	if hint, source, ok := HintedDelay(resp, o.sleeper.Clock().Now()); ok {
		return o.clamp(hint), source
	}
	return o.Backoff(attempt), "fallback"
}

func (o *Orchestrator) label(attempt int) string {
	return fmt.Sprintf("retry %d/%d", attempt+1, o.cfg.MaxRetries)
}

func discard(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
