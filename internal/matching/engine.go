// Package matching indexes postings by embedding and ranks them against a
// candidate profile.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/cache"
	"github.com/spigell/careerlens/internal/embedding"
	"github.com/spigell/careerlens/internal/listings"
)

var (
	// ErrNoQuery is returned by Search when neither a query nor a vector is given.
	ErrNoQuery = errors.New("search needs a query text or a resume vector")
	// ErrNoSkills is returned by ProfileVector for an empty skill set.
	ErrNoSkills = errors.New("no skills to embed")
	// ErrNoEmbedding is returned when the provider produced nothing usable.
	ErrNoEmbedding = errors.New("embedding unavailable")
)

// Embedder produces vectors for texts.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, int, error)
	EmbedBatch(ctx context.Context, texts []string, batchSize int) (embedding.BatchResult, error)
}

type indexed struct {
	job    *listings.Posting
	vector []float32
}

// Engine holds the postings indexed for one search.
type Engine struct {
	embedder  Embedder
	session   *Session
	batchSize int
	logger    *zap.Logger

	mu    sync.RWMutex
	index []indexed
}

// NewEngine creates an engine backed by session. A nil session gets a private one.
func NewEngine(embedder Embedder, session *Session, batchSize int, logger *zap.Logger) *Engine {
	if session == nil {
		session = NewSession(cache.DefaultEmbeddingCeiling)
	}
	if batchSize <= 0 {
		batchSize = embedding.DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		embedder:  embedder,
		session:   session,
		batchSize: batchSize,
		logger:    logger,
	}
}

// IndexJobs embeds the first maxToIndex postings (all when maxToIndex <= 0)
// and replaces the current index with them. Cached vectors are reused; postings
// whose embedding failed are left out. It returns the number indexed.
func (e *Engine) IndexJobs(ctx context.Context, jobs []*listings.Posting, maxToIndex int) (int, error) {
	if maxToIndex > 0 && len(jobs) > maxToIndex {
		jobs = jobs[:maxToIndex]
	}

	vectors := make([][]float32, len(jobs))
	keys := make([]string, len(jobs))

	var (
		missTexts []string
		missPos   []int
		hits      int
		embedded  int
	)
	for i, job := range jobs {
		if job == nil {
			continue
		}
		text := job.EmbeddingText()
		keys[i] = cache.TextKey(text)
		if vec, ok := e.session.Postings.Get(keys[i]); ok {
			vectors[i] = vec
			hits++
			continue
		}
		missTexts = append(missTexts, text)
		missPos = append(missPos, i)
	}

	if len(missTexts) > 0 {
		batch, err := e.embedder.EmbedBatch(ctx, missTexts, e.batchSize)
		if err != nil && ctx.Err() != nil {
			return 0, err
		}
		for j, vec := range batch.Vectors {
			if vec == nil {
				continue
			}
			pos := missPos[j]
			vectors[pos] = vec
			e.session.Postings.Put(keys[pos], vec)
			embedded++
		}
	}

	index := make([]indexed, 0, len(jobs))
	for i, job := range jobs {
		if job == nil || vectors[i] == nil {
			continue
		}
		index = append(index, indexed{job: job, vector: vectors[i]})
	}

	e.mu.Lock()
	e.index = index
	e.mu.Unlock()

	e.logger.Info("indexed postings",
		zap.Int("requested", len(jobs)),
		zap.Int("indexed", len(index)),
		zap.Int("cache_hits", hits),
		zap.Int("embedded", embedded),
	)

	return len(index), nil
}

// Len returns the number of indexed postings.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.index)
}

// Search returns up to topK indexed postings ordered by cosine similarity to
// the resume vector, or to the embedded query when resumeVector is nil. Only
// Similarity is set; skill scoring is left to Score. topK <= 0 returns all.
func (e *Engine) Search(ctx context.Context, query string, topK int, resumeVector []float32) ([]Result, error) {
	target := resumeVector
	if target == nil {
		query = strings.TrimSpace(query)
		if query == "" {
			return nil, ErrNoQuery
		}

		vec, _, err := e.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		target = vec
	}

	e.mu.RLock()
	results := make([]Result, 0, len(e.index))
	for _, item := range e.index {
		results = append(results, Result{
			Job:        item.job,
			Similarity: CosineSimilarity(target, item.vector),
		})
	}
	e.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// ResumeVector embeds resume text once per distinct text and keeps the vector
// in the session.
func (e *Engine) ResumeVector(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoQuery
	}
	if vec, ok := e.session.ResumeVector(text); ok {
		return vec, nil
	}

	vec, _, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed resume: %w", err)
	}

	e.session.SetResumeVector(text, vec)
	return vec, nil
}

// ProfileVector returns the mean embedding of a skill set. Single skills and
// whole sets are served from the session caches when possible.
func (e *Engine) ProfileVector(ctx context.Context, skills []string) ([]float32, error) {
	keys := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		k := cache.SkillKey(s)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, ErrNoSkills
	}

	setKey := cache.SkillSetKey(keys)
	if vec, ok := e.session.Profiles.Get(setKey); ok {
		return vec, nil
	}

	vectors := make([][]float32, 0, len(keys))
	var missing []string
	for _, k := range keys {
		if vec, ok := e.session.Skills.Get(k); ok {
			vectors = append(vectors, vec)
			continue
		}
		missing = append(missing, k)
	}

	if len(missing) > 0 {
		batch, err := e.embedder.EmbedBatch(ctx, missing, e.batchSize)
		if err != nil && ctx.Err() != nil {
			return nil, err
		}
		for i, vec := range batch.Vectors {
			if vec == nil {
				continue
			}
			e.session.Skills.Put(missing[i], vec)
			vectors = append(vectors, vec)
		}
	}

	mean := meanVector(vectors)
	if mean == nil {
		return nil, ErrNoEmbedding
	}

	e.session.Profiles.Put(setKey, mean)
	return mean, nil
}

// CosineSimilarity returns the cosine of the angle between a and b clamped to
// [0,1]. Vectors of different length or zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}

func meanVector(vectors [][]float32) []float32 {
	var dim int
	for _, v := range vectors {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		return nil
	}

	sum := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}

	mean := make([]float32, dim)
	for i := range sum {
		mean[i] = float32(sum[i] / float64(n))
	}
	return mean
}
