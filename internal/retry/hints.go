package retry

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// hintHeaders are inspected in order; the first parseable value wins.
var hintHeaders = []string{
	"Retry-After",
	"x-ms-retry-after-ms",
	"x-ms-retry-after",
	"x-ratelimit-reset-requests",
	"x-ratelimit-reset-tokens",
	"x-ratelimit-reset",
}

var bodyHint = regexp.MustCompile(`(?i)after\s+(\d+)\s+seconds?`)

// maxBodyPeek bounds how much of an error body is read for a hint.
const maxBodyPeek = 64 << 10

// HintedDelay extracts the provider suggested wait from resp. It returns false
// when no header or body hint parses. The body is restored for later readers.
func HintedDelay(resp *http.Response, now time.Time) (time.Duration, string, bool) {
	if resp == nil {
		return 0, "", false
	}

	for _, header := range hintHeaders {
		raw := strings.TrimSpace(resp.Header.Get(header))
		if raw == "" {
			continue
		}

		if strings.HasSuffix(header, "-ms") {
			ms, err := strconv.ParseFloat(raw, 64)
			if err != nil || ms < 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
				continue
			}
			return ceilSeconds(scaled(ms, time.Millisecond)), "header:" + header, true
		}

		if delay, ok := parseRetryAfter(raw, now); ok {
			return delay, "header:" + header, true
		}
	}

	if delay, ok := delayFromBody(resp); ok {
		return delay, "body", true
	}

	return 0, "", false
}

// parseRetryAfter accepts seconds, hh:mm:ss, Go durations like 6m0s and HTTP dates.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return 0, false
		}
		return ceilSeconds(scaled(seconds, time.Second)), true
	}

	if strings.Count(value, ":") == 2 {
		parts := strings.Split(value, ":")
		hours, errH := strconv.Atoi(parts[0])
		minutes, errM := strconv.Atoi(parts[1])
		seconds, errS := strconv.ParseFloat(parts[2], 64)
		if errH == nil && errM == nil && errS == nil {
			total := float64(hours)*3600 + float64(minutes)*60 + seconds
			if total >= 0 && !math.IsNaN(total) && !math.IsInf(total, 0) {
				return ceilSeconds(scaled(total, time.Second)), true
			}
		}
	}

	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return 0, false
		}
		return ceilSeconds(d), true
	}

	if at, err := http.ParseTime(value); err == nil {
		if delta := at.Sub(now); delta > 0 {
			return ceilSeconds(delta), true
		}
	}

	return 0, false
}

func delayFromBody(resp *http.Response) (time.Duration, bool) {
	if resp.Body == nil || resp.Body == http.NoBody {
		return 0, false
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyPeek))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 {
		return 0, false
	}

	message := messageFromJSON(data)
	if message == "" {
		message = string(data)
	}

	match := bodyHint.FindStringSubmatch(message)
	if match == nil {
		return 0, false
	}

	seconds, err := strconv.Atoi(match[1])
	if err != nil || seconds < 0 {
		return 0, false
	}

	return scaled(float64(seconds), time.Second), true
}

func messageFromJSON(data []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}

	if nested, ok := payload["error"].(map[string]any); ok {
		for _, key := range []string{"message", "code"} {
			if s, ok := nested[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}

	if s, ok := payload["message"].(string); ok {
		return s
	}

	return ""
}

// maxHint is what an oversized hint saturates to; clamp then applies MaxDelay.
const maxHint = time.Duration(math.MaxInt64)

// scaled converts v units into a Duration without wrapping past maxHint.
func scaled(v float64, unit time.Duration) time.Duration {
	if v >= float64(maxHint)/float64(unit) {
		return maxHint
	}
	return time.Duration(v * float64(unit))
}

func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return scaled(math.Ceil(d.Seconds()), time.Second)
}
