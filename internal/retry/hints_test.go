package retry

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHintedDelay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		header http.Header
		body   string
		want   time.Duration
		source string
		ok     bool
	}{
		{
			name:   "retry-after seconds",
			header: http.Header{"Retry-After": []string{"7"}},
			want:   7 * time.Second,
			source: "header:Retry-After",
			ok:     true,
		},
		{
			name:   "retry-after fractional rounds up",
			header: http.Header{"Retry-After": []string{"2.1"}},
			want:   3 * time.Second,
			source: "header:Retry-After",
			ok:     true,
		},
		{
			name:   "retry-after http date",
			header: http.Header{"Retry-After": []string{now.Add(30 * time.Second).Format(http.TimeFormat)}},
			want:   30 * time.Second,
			source: "header:Retry-After",
			ok:     true,
		},
		{
			name:   "retry-after clock format",
			header: http.Header{"Retry-After": []string{"00:01:05"}},
			want:   65 * time.Second,
			source: "header:Retry-After",
			ok:     true,
		},
		{
			name:   "milliseconds header rounds up",
			header: http.Header{"X-Ms-Retry-After-Ms": []string{"1500"}},
			want:   2 * time.Second,
			source: "header:x-ms-retry-after-ms",
			ok:     true,
		},
		{
			name:   "openai reset duration",
			header: http.Header{"X-Ratelimit-Reset-Requests": []string{"6m0s"}},
			want:   6 * time.Minute,
			source: "header:x-ratelimit-reset-requests",
			ok:     true,
		},
		{
			name: "retry-after wins over milliseconds",
			header: http.Header{
				"Retry-After":         []string{"4"},
				"X-Ms-Retry-After-Ms": []string{"9000"},
			},
			want:   4 * time.Second,
			source: "header:Retry-After",
			ok:     true,
		},
		{
			name:   "huge retry-after saturates",
			header: http.Header{"Retry-After": []string{"99999999999"}},
			want:   maxHint,
			source: "header:Retry-After",
			ok:     true,
		},
		{
			name:   "huge milliseconds saturate",
			header: http.Header{"X-Ms-Retry-After-Ms": []string{"1e17"}},
			want:   maxHint,
			source: "header:x-ms-retry-after-ms",
			ok:     true,
		},
		{
			name:   "huge clock format saturates",
			header: http.Header{"Retry-After": []string{"9999999999:00:00"}},
			want:   maxHint,
			source: "header:Retry-After",
			ok:     true,
		},
		{
			name:   "malformed header falls through to body",
			header: http.Header{"Retry-After": []string{"later"}},
			body:   `{"error":{"code":"429","message":"Please retry after 12 seconds."}}`,
			want:   12 * time.Second,
			source: "body",
			ok:     true,
		},
		{
			name:   "top level message",
			body:   `{"message":"Rate limit is exceeded. Try again after 3 seconds"}`,
			want:   3 * time.Second,
			source: "body",
			ok:     true,
		},
		{
			name:   "plain text body",
			body:   "Too many requests, retry after 1 second",
			want:   time.Second,
			source: "body",
			ok:     true,
		},
		{
			name: "no hint",
			body: `{"error":{"message":"slow down"}}`,
		},
		{
			name:   "past http date ignored",
			header: http.Header{"Retry-After": []string{now.Add(-time.Minute).Format(http.TimeFormat)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if header == nil {
				header = http.Header{}
			}
			resp := &http.Response{
				StatusCode: http.StatusTooManyRequests,
				Header:     header,
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}

			got, source, ok := HintedDelay(resp, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestHintedDelayRestoresBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("retry after 9 seconds")),
	}

	_, _, ok := HintedDelay(resp, time.Now())
	require.True(t, ok)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "retry after 9 seconds", string(body))
}
