package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
)

// DefaultEmbeddingCeiling is the size above which an embedding cache is halved.
const DefaultEmbeddingCeiling = 500

// EmbeddingCache keeps vectors in insertion order. When it grows past its
// ceiling the older entries are dropped in one pass, keeping the newest
// ceiling/2. Stored vectors are shared and must not be modified.
type EmbeddingCache struct {
	mu      sync.Mutex
	ceiling int
	order   []string
	vectors map[string][]float32
}

// NewEmbeddingCache creates a cache; ceiling <= 0 uses DefaultEmbeddingCeiling.
func NewEmbeddingCache(ceiling int) *EmbeddingCache {
	if ceiling <= 0 {
		ceiling = DefaultEmbeddingCeiling
	}

	return &EmbeddingCache{
		ceiling: ceiling,
		vectors: make(map[string][]float32),
	}
}

// Get returns the vector stored under key.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, ok := c.vectors[key]
	return vec, ok
}

// Put stores vec. Overwriting a key keeps its original insertion position.
func (c *EmbeddingCache) Put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.vectors[key]; !ok {
		c.order = append(c.order, key)
	}
	c.vectors[key] = vec

	if len(c.order) > c.ceiling {
		keep := c.ceiling / 2
		drop := len(c.order) - keep
		for _, k := range c.order[:drop] {
			delete(c.vectors, k)
		}
		c.order = slices.Clone(c.order[drop:])
	}
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// SkillKey normalizes a skill for lookups: trimmed and lowercased.
func SkillKey(skill string) string {
	return strings.ToLower(strings.TrimSpace(skill))
}

// SkillSetKey hashes a whole skill set independent of order, case and duplicates.
func SkillSetKey(skills []string) string {
	normalized := make([]string, 0, len(skills))
	for _, s := range skills {
		if k := SkillKey(s); k != "" {
			normalized = append(normalized, k)
		}
	}
	slices.Sort(normalized)
	normalized = slices.Compact(normalized)

	return TextKey(strings.Join(normalized, "\n"))
}

// TextKey returns a content hash suitable as a cache key.
func TextKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
