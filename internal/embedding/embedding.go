// Package embedding talks to an OpenAI compatible embeddings endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/careerlens/internal/logger"
	"github.com/spigell/careerlens/internal/retry"
	"github.com/spigell/careerlens/internal/secrets"
	"github.com/spigell/careerlens/internal/throttle"
	"github.com/spigell/careerlens/internal/usage"
	"github.com/spigell/careerlens/internal/utils"
)

const (
	defaultEndpoint    = "https://api.openai.com/v1"
	defaultModel       = string(openai.SmallEmbedding3)
	azureAPIVersion    = "2024-02-01"
	DefaultBatchSize   = 20
	defaultTimeout     = 30 * time.Second
	batchTimeout       = 25 * time.Second
	maxLogLength       = 120
	charsPerTokenGuess = 4
)

var (
	// ErrBadStatus marks a response with a status the client cannot use.
	ErrBadStatus = errors.New("unexpected embedding response status")
	// ErrMalformedResponse marks a response body that does not match the request.
	ErrMalformedResponse = errors.New("malformed embedding response")
)

// Config describes the provider endpoint.
type Config struct {
	APIKey     string        `mapstructure:"api-key"`
	Endpoint   string        `mapstructure:"endpoint"`
	Model      string        `mapstructure:"model"`
	Azure      bool          `mapstructure:"azure"`
	BatchDelay time.Duration `mapstructure:"batch-delay" validate:"gte=0"`
}

// Client issues single and batched embedding requests through the retry
// orchestrator and records token usage.
type Client struct {
	url        string
	apiKey     string
	azure      bool
	model      string
	httpClient *http.Client

	retry   *retry.Orchestrator
	sleeper *throttle.Sleeper
	delay   time.Duration
	usage   *usage.Accountant
	logger  *zap.Logger
}

// New creates a client. It refuses to build without credentials.
func New(cfg Config, orchestrator *retry.Orchestrator, sleeper *throttle.Sleeper, accountant *usage.Accountant, log *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("embedding api key: %w", secrets.ErrNotConfigured)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	if sleeper == nil {
		sleeper = throttle.NewSleeper(nil, nil)
	}
	if orchestrator == nil {
		orchestrator = retry.New(retry.DefaultConfig(), sleeper, log)
	}

	return &Client{
		url:        endpointURL(cfg.Endpoint, model, cfg.Azure),
		apiKey:     apiKey,
		azure:      cfg.Azure,
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retry:      orchestrator,
		sleeper:    sleeper,
		delay:      cfg.BatchDelay,
		usage:      accountant,
		logger:     logger.WithProvider(log, "embedding", model),
	}, nil
}

func endpointURL(endpoint, model string, azure bool) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	if azure {
		endpoint = strings.TrimSuffix(endpoint, "/openai")
		return fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s", endpoint, model, azureAPIVersion)
	}

	return endpoint + "/embeddings"
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Embed returns the vector of a single text and the tokens it cost.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, int, error) {
	vectors, tokens, err := c.request(ctx, text, []string{text}, defaultTimeout)
	if err != nil {
		return nil, 0, err
	}

	return vectors[0], tokens, nil
}

// BatchResult holds vectors aligned with the input texts. Vectors[i] is nil
// when text i could not be embedded.
type BatchResult struct {
	Vectors [][]float32
	Tokens  int
}

// Embedded counts the inputs that produced a vector.
func (r BatchResult) Embedded() int {
	n := 0
	for _, v := range r.Vectors {
		if v != nil {
			n++
		}
	}
	return n
}

// EmbedBatch embeds texts in chunks of batchSize. A failed chunk is retried
// item by item; a chunk that stays rate limited is skipped. Partial results are
// returned without error, only a done context aborts the run.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, batchSize int) (BatchResult, error) {
	result := BatchResult{Vectors: make([][]float32, len(texts))}
	if len(texts) == 0 {
		return result, nil
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	total := (len(texts) + batchSize - 1) / batchSize
	pacer := c.newPacer()

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch := texts[start:end]
		num := start/batchSize + 1

		if err := c.pace(ctx, pacer, num, total); err != nil {
			return result, err
		}

		c.logger.Debug("embedding batch",
			zap.Int("batch", num),
			zap.Int("batches", total),
			zap.Int("size", len(batch)),
		)

		vectors, tokens, err := c.request(ctx, batch, batch, batchTimeout)
		switch {
		case err == nil:
			copy(result.Vectors[start:end], vectors)
			result.Tokens += tokens
		case ctx.Err() != nil:
			return result, ctx.Err()
		case errors.Is(err, retry.ErrRateLimited):
			c.logger.Warn("rate limit persisted, skipping batch",
				zap.Int("batch", num),
				zap.Int("batches", total),
			)
		default:
			c.logger.Warn("batch embedding failed, falling back to single requests",
				zap.Int("batch", num),
				zap.Error(err),
			)
			for i, text := range batch {
				vec, tokens, err := c.Embed(ctx, text)
				if err != nil {
					if ctx.Err() != nil {
						return result, ctx.Err()
					}
					c.logger.Debug("dropping text after failed embedding",
						zap.String("text", utils.TruncateForLog(text, maxLogLength)),
						zap.Error(err),
					)
					continue
				}
				result.Vectors[start+i] = vec
				result.Tokens += tokens
			}
		}
	}

	return result, nil
}

// newPacer returns a limiter spacing batch starts of one EmbedBatch call by
// the configured delay, or nil when batches are not paced.
func (c *Client) newPacer() *rate.Limiter {
	if c.delay <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(c.delay), 1)
}

// pace waits until batch num may start. The first batch takes the single
// burst token of a fresh pacer, so it never waits and leaves no debt.
func (c *Client) pace(ctx context.Context, pacer *rate.Limiter, num, total int) error {
	if pacer == nil {
		return nil
	}

	now := c.sleeper.Clock().Now()
	reservation := pacer.ReserveN(now, 1)
	if !reservation.OK() {
		return nil
	}

	delay := reservation.DelayFrom(now)
	if num == 1 || delay <= 0 {
		return nil
	}

	if err := c.sleeper.Sleep(ctx, delay, fmt.Sprintf("batch %d/%d", num, total)); err != nil {
		reservation.CancelAt(c.sleeper.Clock().Now())
		return err
	}
	return nil
}

// request posts one embeddings call. input is the wire value, texts the
// inputs it stands for. Vectors come back in input order.
func (c *Client) request(ctx context.Context, input any, texts []string, timeout time.Duration) ([][]float32, int, error) {
	payload, err := json.Marshal(openai.EmbeddingRequest{
		Input: input,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal embedding request: %w", err)
	}

	resp, err := c.retry.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			cancel()
			return nil, err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	})
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, 0, fmt.Errorf("%w: %s: %s", ErrBadStatus, resp.Status, utils.TruncateForLog(string(body), maxLogLength))
	}

	var decoded openai.EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	vectors, err := orderByIndex(decoded.Data, len(texts))
	if err != nil {
		return nil, 0, err
	}

	tokens := decoded.Usage.TotalTokens
	if tokens <= 0 {
		tokens = estimateTokens(texts)
	}
	c.usage.AddEmbeddingTokens(tokens)

	return vectors, tokens, nil
}

// orderByIndex sorts provider items by their index field before extracting
// vectors; providers do not promise to keep input order.
func orderByIndex(data []openai.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrMalformedResponse, len(data), want)
	}

	sorted := make([]openai.Embedding, len(data))
	copy(sorted, data)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	vectors := make([][]float32, want)
	for pos, item := range sorted {
		if item.Index != pos || len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: unexpected item at index %d", ErrMalformedResponse, item.Index)
		}
		vectors[pos] = item.Embedding
	}

	return vectors, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.azure {
		req.Header.Set("api-key", c.apiKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func estimateTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += (utf8.RuneCountInString(t) + charsPerTokenGuess - 1) / charsPerTokenGuess
	}
	return total
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
