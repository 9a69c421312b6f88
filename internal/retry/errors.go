package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrRateLimited reports that the provider kept answering 429.
	ErrRateLimited = errors.New("rate limit exceeded, try again later")
	// ErrTimeout reports that every attempt timed out.
	ErrTimeout = errors.New("request timed out")
	// ErrTransport reports a network level failure on every attempt.
	ErrTransport = errors.New("network error")
)

// Error is returned once all attempts are used up.
type Error struct {
	Kind       error
	Attempts   int
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s after %d attempts", e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsRetryable reports whether err belongs to the transient classes a caller
// may try again later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport)
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	return ErrTransport
}
