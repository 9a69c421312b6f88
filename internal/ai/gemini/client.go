package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/careerlens/internal/logger"
	"github.com/spigell/careerlens/internal/retry"
	"github.com/spigell/careerlens/internal/secrets"
	"github.com/spigell/careerlens/internal/usage"
	"github.com/spigell/careerlens/internal/utils"
)

const (
	DefaultModel = "gemini-2.5-flash"
	providerName = "gemini"
)

// ErrRequestFailed wraps a Gemini API error that is not retried.
var ErrRequestFailed = errors.New("gemini request failed")

type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client to provide simple prompt-based interactions.
type Generator struct {
	models    models
	modelName string

	retry  *retry.Orchestrator
	usage  *usage.Accountant
	logger *zap.Logger
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, orchestrator *retry.Orchestrator, accountant *usage.Accountant, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key: %w", secrets.ErrNotConfigured)
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, model, orchestrator, accountant, log), nil
}

func newGenerator(m models, model string, orchestrator *retry.Orchestrator, accountant *usage.Accountant, log *zap.Logger) *Generator {
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultModel
	}
	log = logger.WithProvider(log, providerName, model)
	if orchestrator == nil {
		orchestrator = retry.New(retry.DefaultConfig(), nil, log)
	}

	return &Generator{
		models:    m,
		modelName: model,
		retry:     orchestrator,
		usage:     accountant,
		logger:    log,
	}
}

// Generate sends the prompt to Gemini and returns the textual response. Rate
// limited calls are retried with the provider hint taken from the error message.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	var result *genai.GenerateContentResponse
	resp, err := g.retry.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		out, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), nil)
		if err != nil {
			if apiErr, ok := asAPIError(err); ok {
				return apiErrorResponse(apiErr), nil
			}
			return nil, err
		}
		result = out
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: http.NoBody}, nil
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, utils.TruncateForLog(string(body), 200))
	}

	g.recordUsage(result)

	output := collectText(result)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

func (g *Generator) recordUsage(resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}

	prompt := int(resp.UsageMetadata.PromptTokenCount)
	completion := int(resp.UsageMetadata.CandidatesTokenCount)
	g.usage.AddCompletionTokens(prompt, completion)

	g.logger.Debug("gemini usage",
		zap.Int("prompt_tokens", prompt),
		zap.Int("completion_tokens", completion),
	)
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}

	return genai.APIError{}, false
}

// apiErrorResponse renders an API error as the HTTP response it came from so the
// retry orchestrator can classify it and read hints from the message.
func apiErrorResponse(apiErr genai.APIError) *http.Response {
	status := apiErr.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"status":  apiErr.Status,
		},
	})

	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, apiErr.Status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(payload)),
	}
}

// Model returns the model name requests are sent to.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}
