// Package listings fetches job postings from the Indeed scraper on RapidAPI.
package listings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/retry"
	"github.com/spigell/careerlens/internal/secrets"
	"github.com/spigell/careerlens/internal/throttle"
	"github.com/spigell/careerlens/internal/utils"
)

const (
	apiURL      = "https://indeed-scraper-api.p.rapidapi.com/api/job"
	apiHost     = "indeed-scraper-api.p.rapidapi.com"
	contentType = "application/json"
	userAgent   = "spigell/careerlens"

	maxErrorBody = 200
)

var (
	// ErrBadStatus is returned when the provider answers with a status other than 200/201.
	ErrBadStatus = errors.New("bad listings response status")
	// ErrEmptyQuery is returned for searches without keywords.
	ErrEmptyQuery = errors.New("search query is required")
)

// Client searches job listings through the RapidAPI scraper.
type Client struct {
	apiKey  string
	limiter *throttle.Limiter
	retry   *retry.Orchestrator
	logger  *zap.Logger

	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
	Host       string
}

// New creates a listings client. Every search goes through limiter before it
// reaches the retry orchestrator.
func New(apiKey string, limiter *throttle.Limiter, orchestrator *retry.Orchestrator, logger *zap.Logger) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("rapidapi key: %w", secrets.ErrNotConfigured)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if orchestrator == nil {
		orchestrator = retry.New(retry.DefaultConfig(), nil, logger)
	}

	return &Client{
		apiKey:  apiKey,
		limiter: limiter,
		retry:   orchestrator,
		logger:  logger,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: userAgent,
		APIURL:    apiURL,
		Host:      apiHost,
	}, nil
}

// Search runs one scraper query. Records that cannot be decoded are skipped.
func (c *Client) Search(ctx context.Context, params SearchParams) (*Postings, error) {
	params = params.WithDefaults()
	if params.Query == "" {
		return nil, ErrEmptyQuery
	}

	payload, err := json.Marshal(params.payload())
	if err != nil {
		return nil, fmt.Errorf("marshal search payload: %w", err)
	}

	if err := c.limiter.Admit(ctx); err != nil {
		return nil, err
	}

	resp, err := c.retry.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		return c.request(c.setHeaders(req))
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", params.Query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s: %s", ErrBadStatus, resp.Status, utils.TruncateForLog(string(body), maxErrorBody))
	}

	records, err := parseRecords(resp.Body)
	if err != nil {
		return nil, err
	}

	postings := decodePostings(records, c.logger)
	c.logger.Debug("got response from listings provider",
		zap.String("query", params.Query),
		zap.Int("records", len(records)),
		zap.Int("postings", postings.Len()),
	)

	return postings, nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("x-rapidapi-host", c.Host)
	req.Header.Set("x-rapidapi-key", c.apiKey)

	return req
}

// parseRecords accepts {"returnvalue":{"data":[...]}}, {"data":[...]} or a bare array.
func parseRecords(body io.Reader) ([]any, error) {
	var decoded any
	if err := json.NewDecoder(body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode listings response: %w", err)
	}

	switch v := decoded.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if rv, ok := v["returnvalue"].(map[string]any); ok {
			data, _ := rv["data"].([]any)
			return data, nil
		}
		data, _ := v["data"].([]any)
		return data, nil
	default:
		return nil, nil
	}
}
