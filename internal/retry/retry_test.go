package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/careerlens/internal/throttle"
	"github.com/spigell/careerlens/internal/throttle/throttletest"
)

type scriptedCall struct {
	steps []func() (*http.Response, error)
	calls int
}

func (s *scriptedCall) call(context.Context) (*http.Response, error) {
	step := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	return step()
}

func respond(status int, header http.Header, body string) func() (*http.Response, error) {
	return func() (*http.Response, error) {
		if header == nil {
			header = http.Header{}
		}
		return &http.Response{
			StatusCode: status,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}
}

func fail(err error) func() (*http.Response, error) {
	return func() (*http.Response, error) { return nil, err }
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func newOrchestrator(cfg Config) (*Orchestrator, *throttletest.Clock) {
	clock := throttletest.NewClock(time.Unix(1_700_000_000, 0))
	return New(cfg, throttle.NewSleeper(clock, nil), nil), clock
}

func TestBackoffIsNonDecreasingAndBounded(t *testing.T) {
	o, _ := newOrchestrator(Config{MaxRetries: 10, InitialDelay: time.Second, MaxDelay: 20 * time.Second})

	prev := time.Duration(0)
	for attempt := range 12 {
		delay := o.Backoff(attempt)
		assert.GreaterOrEqual(t, delay, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, 20*time.Second, "attempt %d", attempt)
		prev = delay
	}

	assert.Equal(t, time.Second, o.Backoff(0))
	assert.Equal(t, 4*time.Second, o.Backoff(2))
	assert.Equal(t, 16*time.Second, o.Backoff(4))
	assert.Equal(t, 20*time.Second, o.Backoff(5))
	assert.Equal(t, 20*time.Second, o.Backoff(1000))
}

func TestBackoffClampsToOneSecond(t *testing.T) {
	o, _ := newOrchestrator(Config{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Minute})
	assert.Equal(t, time.Second, o.Backoff(0))
	assert.Equal(t, time.Second, o.Backoff(3))
}

func TestExecuteReturnsSuccessImmediately(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated} {
		o, clock := newOrchestrator(DefaultConfig())
		call := &scriptedCall{steps: []func() (*http.Response, error){respond(status, nil, "ok")}}

		resp, err := o.Execute(context.Background(), call.call)
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode)
		assert.Equal(t, 1, call.calls)
		assert.Zero(t, clock.Waited())
	}
}

func TestExecuteDoesNotRetryOtherStatuses(t *testing.T) {
	o, clock := newOrchestrator(DefaultConfig())
	call := &scriptedCall{steps: []func() (*http.Response, error){respond(http.StatusInternalServerError, nil, "boom")}}

	resp, err := o.Execute(context.Background(), call.call)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, call.calls)
	assert.Zero(t, clock.Waited())

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "boom", string(body))
}

func TestExecuteHonorsRetryAfterHeaderRegardlessOfAttempt(t *testing.T) {
	o, clock := newOrchestrator(Config{MaxRetries: 6, InitialDelay: 4 * time.Second, MaxDelay: time.Minute})
	hinted := http.Header{"Retry-After": []string{"5"}}
	call := &scriptedCall{steps: []func() (*http.Response, error){
		respond(http.StatusTooManyRequests, http.Header{}, ""),
		respond(http.StatusTooManyRequests, http.Header{}, ""),
		respond(http.StatusTooManyRequests, hinted, ""),
		respond(http.StatusOK, nil, "ok"),
	}}

	resp, err := o.Execute(context.Background(), call.call)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, call.calls)

	// fallback 4s + fallback 8s + hinted 5s even though the fallback would be 16s.
	assert.Equal(t, 17*time.Second, clock.Waited())
}

func TestExecuteFirstRetryUsesHintExactly(t *testing.T) {
	o, clock := newOrchestrator(DefaultConfig())
	call := &scriptedCall{steps: []func() (*http.Response, error){
		respond(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"5"}}, ""),
		respond(http.StatusOK, nil, ""),
	}}

	_, err := o.Execute(context.Background(), call.call)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, clock.Waited())
}

func TestExecuteClampsHintToMaxDelay(t *testing.T) {
	o, clock := newOrchestrator(Config{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: 10 * time.Second})
	call := &scriptedCall{steps: []func() (*http.Response, error){
		respond(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"3600"}}, ""),
		respond(http.StatusOK, nil, ""),
	}}

	_, err := o.Execute(context.Background(), call.call)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, clock.Waited())
}

func TestExecuteClampsOversizedHintsToMaxDelay(t *testing.T) {
	hints := []http.Header{
		{"Retry-After": []string{"99999999999"}},
		{"X-Ms-Retry-After-Ms": []string{"1e17"}},
		{"X-Ratelimit-Reset": []string{"1700000000000"}},
		{"Retry-After": []string{"9999999999:00:00"}},
	}

	for _, header := range hints {
		o, clock := newOrchestrator(Config{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: time.Minute})
		call := &scriptedCall{steps: []func() (*http.Response, error){
			respond(http.StatusTooManyRequests, header, ""),
			respond(http.StatusOK, nil, ""),
		}}

		_, err := o.Execute(context.Background(), call.call)
		require.NoError(t, err)
		assert.Equal(t, time.Minute, clock.Waited(), "header %v", header)
	}
}

func TestExecuteFallsBackWhenHintMalformed(t *testing.T) {
	o, clock := newOrchestrator(Config{MaxRetries: 2, InitialDelay: 2 * time.Second, MaxDelay: time.Minute})
	call := &scriptedCall{steps: []func() (*http.Response, error){
		respond(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"soon-ish"}}, "not json"),
		respond(http.StatusOK, nil, ""),
	}}

	_, err := o.Execute(context.Background(), call.call)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, clock.Waited())
}

func TestExecuteRateLimitExhaustion(t *testing.T) {
	o, _ := newOrchestrator(Config{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: time.Minute})
	call := &scriptedCall{steps: []func() (*http.Response, error){
		respond(http.StatusTooManyRequests, nil, ""),
	}}

	resp, err := o.Execute(context.Background(), call.call)
	require.Nil(t, resp)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 3, call.calls)

	var retryErr *Error
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, 3, retryErr.Attempts)
	assert.Equal(t, http.StatusTooManyRequests, retryErr.StatusCode)
}

func TestExecuteRetriesTransportFailures(t *testing.T) {
	o, clock := newOrchestrator(Config{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: time.Minute})
	call := &scriptedCall{steps: []func() (*http.Response, error){
		fail(errors.New("connection reset by peer")),
		fail(timeoutErr{}),
		respond(http.StatusOK, nil, ""),
	}}

	resp, err := o.Execute(context.Background(), call.call)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3*time.Second, clock.Waited())
}

func TestExecuteTimeoutExhaustion(t *testing.T) {
	o, _ := newOrchestrator(Config{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: time.Minute})
	call := &scriptedCall{steps: []func() (*http.Response, error){fail(timeoutErr{})}}

	_, err := o.Execute(context.Background(), call.call)
	require.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 2, call.calls)
}

func TestExecuteTransportExhaustionWrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: no such host")
	o, _ := newOrchestrator(Config{MaxRetries: 2})
	call := &scriptedCall{steps: []func() (*http.Response, error){fail(cause)}}

	_, err := o.Execute(context.Background(), call.call)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, cause)
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	o, _ := newOrchestrator(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	call := &scriptedCall{steps: []func() (*http.Response, error){
		func() (*http.Response, error) {
			cancel()
			return nil, context.Canceled
		},
	}}

	_, err := o.Execute(ctx, call.call)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, call.calls)
}
