package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/careerlens/internal/retry"
	"github.com/spigell/careerlens/internal/secrets"
	"github.com/spigell/careerlens/internal/throttle"
	"github.com/spigell/careerlens/internal/throttle/throttletest"
	"github.com/spigell/careerlens/internal/usage"
)

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeModels struct {
	mu      sync.Mutex
	queue   []fakeResponse
	models  []string
	prompts []string
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.models = append(f.models, model)
	for _, content := range contents {
		for _, part := range content.Parts {
			f.prompts = append(f.prompts, part.Text)
		}
	}

	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next.resp, next.err
}

func textResponse(text string, prompt, completion int32) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     prompt,
			CandidatesTokenCount: completion,
		},
	}
}

func newTestGenerator(t *testing.T, models *fakeModels) (*Generator, *usage.Accountant, *throttletest.Clock) {
	t.Helper()

	clock := throttletest.NewClock(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	sleeper := throttle.NewSleeper(clock, nil)
	orchestrator := retry.New(retry.Config{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: 30 * time.Second}, sleeper, zap.NewNop())

	accountant, err := usage.NewAccountant(usage.DefaultPricing(), nil)
	if err != nil {
		t.Fatalf("new accountant: %v", err)
	}

	return newGenerator(models, "gemini-pro", orchestrator, accountant, zap.NewNop()), accountant, clock
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	_, err := NewGenerator(context.Background(), "  ", "", nil, nil, nil)
	if !errors.Is(err, secrets.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGeneratorRecordsUsage(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse("  hello  ", 120, 30), nil)

	g, accountant, _ := newTestGenerator(t, models)

	output, err := g.Generate(context.Background(), "  say hello ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != "hello" {
		t.Fatalf("unexpected output: %q", output)
	}
	if models.prompts[0] != "say hello" || models.models[0] != "gemini-pro" {
		t.Fatalf("unexpected request: %q to %q", models.prompts[0], models.models[0])
	}

	summary := accountant.Summary()
	if summary.PromptTokens != 120 || summary.CompletionTokens != 30 || summary.TotalTokens != 150 {
		t.Fatalf("unexpected usage: %+v", summary)
	}
}

func TestGeneratorRetriesRateLimitWithHint(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, please retry after 12 seconds",
	})
	models.enqueue(textResponse("retry ok", 1, 1), nil)

	g, _, clock := newTestGenerator(t, models)

	output, err := g.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}
	if len(models.models) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.models))
	}
	if clock.Waited() != 12*time.Second {
		t.Fatalf("expected to wait the hinted 12s, waited %s", clock.Waited())
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	models := &fakeModels{}
	quota := &genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}
	models.enqueue(nil, quota)
	models.enqueue(nil, quota)

	g, _, _ := newTestGenerator(t, models)

	_, err := g.Generate(context.Background(), "prompt")
	if !errors.Is(err, retry.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if len(models.models) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.models))
	}
}

func TestGeneratorDoesNotRetryPermanentErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT", Message: "bad prompt"})

	g, _, _ := newTestGenerator(t, models)

	_, err := g.Generate(context.Background(), "prompt")
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad prompt") {
		t.Fatalf("expected provider message in error, got %v", err)
	}
	if len(models.models) != 1 {
		t.Fatalf("expected single call, got %d", len(models.models))
	}
}

func TestGeneratorRetriesTransportErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, errors.New("connection reset"))
	models.enqueue(textResponse("ok", 0, 0), nil)

	g, _, _ := newTestGenerator(t, models)

	if _, err := g.Generate(context.Background(), "prompt"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestGeneratorEmptyResponse(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(&genai.GenerateContentResponse{}, nil)

	g, _, _ := newTestGenerator(t, models)

	if _, err := g.Generate(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error for empty response")
	}
	if _, err := g.Generate(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
