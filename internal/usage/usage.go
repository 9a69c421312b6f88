// Package usage tallies tokens and estimated spend per call category.
package usage

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	KindEmbedding  = "embedding"
	KindPrompt     = "prompt"
	KindCompletion = "completion"
)

// Pricing holds linear per-1k-token rates in USD.
type Pricing struct {
	EmbeddingPer1K  float64 `mapstructure:"embedding-per-1k" validate:"gte=0"`
	PromptPer1K     float64 `mapstructure:"prompt-per-1k" validate:"gte=0"`
	CompletionPer1K float64 `mapstructure:"completion-per-1k" validate:"gte=0"`
}

// DefaultPricing matches text-embedding-3-small and gpt-4o-mini list prices.
func DefaultPricing() Pricing {
	return Pricing{
		EmbeddingPer1K:  0.00002,
		PromptPer1K:     0.00015,
		CompletionPer1K: 0.0006,
	}
}

// Summary is a point-in-time copy of the counters.
type Summary struct {
	TotalTokens      int     `json:"total_tokens"`
	EmbeddingTokens  int     `json:"embedding_tokens"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Accountant accumulates usage. Counters only grow until Reset.
type Accountant struct {
	mu      sync.Mutex
	pricing Pricing
	totals  Summary

	tokens *prometheus.CounterVec
	cost   prometheus.Counter
}

// NewAccountant creates an accountant. When reg is not nil the totals are also
// exported as Prometheus counters, which keep growing across Reset calls.
func NewAccountant(pricing Pricing, reg prometheus.Registerer) (*Accountant, error) {
	a := &Accountant{pricing: pricing}
	if reg == nil {
		return a, nil
	}

	tokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "careerlens",
		Name:      "tokens_total",
		Help:      "Tokens consumed by remote model calls.",
	}, []string{"kind"})
	cost := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "careerlens",
		Name:      "cost_usd_total",
		Help:      "Estimated spend on remote model calls in USD.",
	})

	var err error
	if a.tokens, err = register(reg, tokens); err != nil {
		return nil, err
	}
	if a.cost, err = register(reg, cost); err != nil {
		return nil, err
	}

	return a, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// AddEmbeddingTokens records tokens spent on embeddings.
func (a *Accountant) AddEmbeddingTokens(n int) {
	if a == nil || n <= 0 {
		return
	}

	cost := float64(n) / 1000 * a.pricing.EmbeddingPer1K

	a.mu.Lock()
	a.totals.EmbeddingTokens += n
	a.totals.TotalTokens += n
	a.totals.EstimatedCostUSD += cost
	a.mu.Unlock()

	a.observe(KindEmbedding, n, cost)
}

// AddCompletionTokens records prompt and completion tokens of a generation call.
func (a *Accountant) AddCompletionTokens(prompt, completion int) {
	if a == nil {
		return
	}
	prompt = max(prompt, 0)
	completion = max(completion, 0)

	promptCost := float64(prompt) / 1000 * a.pricing.PromptPer1K
	completionCost := float64(completion) / 1000 * a.pricing.CompletionPer1K

	a.mu.Lock()
	a.totals.PromptTokens += prompt
	a.totals.CompletionTokens += completion
	a.totals.TotalTokens += prompt + completion
	a.totals.EstimatedCostUSD += promptCost + completionCost
	a.mu.Unlock()

	a.observe(KindPrompt, prompt, promptCost)
	a.observe(KindCompletion, completion, completionCost)
}

// Summary returns a snapshot of the totals.
func (a *Accountant) Summary() Summary {
	if a == nil {
		return Summary{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totals
}

// Reset zeroes the totals.
func (a *Accountant) Reset() {
	if a == nil {
		return
	}

	a.mu.Lock()
	a.totals = Summary{}
	a.mu.Unlock()
}

func (a *Accountant) observe(kind string, tokens int, cost float64) {
	if a.tokens == nil || tokens == 0 {
		return
	}
	a.tokens.WithLabelValues(kind).Add(float64(tokens))
	a.cost.Add(cost)
}
