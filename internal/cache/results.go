// Package cache holds the session caches: a TTL cache for search results and
// bounded FIFO caches for embedding vectors.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spigell/careerlens/internal/utils"
)

const (
	DefaultResultCapacity = 10
	DefaultResultTTL      = 7 * 24 * time.Hour
)

// Entry is a cached value with its lifetime. It is absent once now >= ExpiresAt.
type Entry[T any] struct {
	Value     T
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry[T]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type resultSlot[T any] struct {
	entry Entry[T]
	seq   uint64
}

// ResultCache is a TTL cache bounded by count. Overflow drops the entries
// created first, reads do not refresh an entry.
type ResultCache[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]resultSlot[T]
	seq      uint64
	now      func() time.Time
}

// NewResultCache creates a cache. Non-positive arguments use the defaults.
func NewResultCache[T any](capacity int, ttl time.Duration) *ResultCache[T] {
	if capacity <= 0 {
		capacity = DefaultResultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}

	return &ResultCache[T]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]resultSlot[T]),
		now:      time.Now,
	}
}

// WithClock swaps the time source, used by tests.
func (c *ResultCache[T]) WithClock(now func() time.Time) *ResultCache[T] {
	c.now = now
	return c
}

// Get returns the live entry for key. Expired entries are dropped on read.
func (c *ResultCache[T]) Get(key string) (Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.entries[key]
	if !ok {
		return Entry[T]{}, false
	}

	if slot.entry.Expired(c.now()) {
		delete(c.entries, key)
		return Entry[T]{}, false
	}

	return slot.entry, true
}

// Put stores value under key for ttl, or the cache default when ttl <= 0.
// An existing entry is replaced and counts as newly created.
func (c *ResultCache[T]) Put(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.seq++
	c.entries[key] = resultSlot[T]{
		entry: Entry[T]{Value: value, CreatedAt: now, ExpiresAt: now.Add(ttl)},
		seq:   c.seq,
	}

	for len(c.entries) > c.capacity {
		c.evictOldest()
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *ResultCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes every entry.
func (c *ResultCache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]resultSlot[T])
}

func (c *ResultCache[T]) evictOldest() {
	var (
		oldestKey string
		oldest    resultSlot[T]
		found     bool
	)

	for key, slot := range c.entries {
		if !found || slot.entry.CreatedAt.Before(oldest.entry.CreatedAt) ||
			(slot.entry.CreatedAt.Equal(oldest.entry.CreatedAt) && slot.seq < oldest.seq) {
			oldestKey, oldest, found = key, slot, true
		}
	}

	if found {
		delete(c.entries, oldestKey)
	}
}

// SearchKey builds the cache key of a listings search. Text fields are trimmed,
// whitespace collapsed and lowercased so equivalent queries share a key.
func SearchKey(query, location string, maxRows int, jobType, country string) string {
	parts := []string{
		"q=" + normalize(query),
		"l=" + normalize(location),
		"n=" + strconv.Itoa(maxRows),
		"t=" + normalize(jobType),
		"c=" + normalize(country),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return "jobs:" + hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.ToLower(utils.NormalizeSpace(s))
}
