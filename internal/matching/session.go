package matching

import (
	"slices"
	"sync"

	"github.com/spigell/careerlens/internal/cache"
)

// Session is the state one user builds up across searches: embedding caches,
// the resume vector and the last ranking. It is owned by the caller and shared
// by every Engine created for it.
type Session struct {
	// Skills caches single skill embeddings keyed by cache.SkillKey.
	Skills *cache.EmbeddingCache
	// Profiles caches averaged skill set embeddings keyed by cache.SkillSetKey.
	Profiles *cache.EmbeddingCache
	// Postings caches posting embeddings keyed by cache.TextKey of the posting text.
	Postings *cache.EmbeddingCache

	mu         sync.Mutex
	resumeKey  string
	resumeVec  []float32
	lastResult []Result
}

// NewSession creates a session whose caches hold up to ceiling vectors each.
func NewSession(ceiling int) *Session {
	return &Session{
		Skills:   cache.NewEmbeddingCache(ceiling),
		Profiles: cache.NewEmbeddingCache(ceiling),
		Postings: cache.NewEmbeddingCache(ceiling),
	}
}

// ResumeVector returns the stored resume embedding when it was computed for
// the same resume text.
func (s *Session) ResumeVector(text string) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resumeVec == nil || s.resumeKey != cache.TextKey(text) {
		return nil, false
	}
	return s.resumeVec, true
}

// SetResumeVector remembers vec as the embedding of text.
func (s *Session) SetResumeVector(text string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resumeKey = cache.TextKey(text)
	s.resumeVec = vec
}

// SetResults keeps the latest ranking for later inspection.
func (s *Session) SetResults(results []Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResult = slices.Clone(results)
}

// Results returns a copy of the latest ranking.
func (s *Session) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lastResult)
}
