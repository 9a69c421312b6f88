package listings

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/careerlens/internal/cache"
)

// Searcher runs a listings query against the provider.
type Searcher interface {
	Search(ctx context.Context, params SearchParams) (*Postings, error)
}

// Fetcher serves searches from the result cache and goes to the provider on a
// miss. Identical searches in flight at the same time share one provider call.
type Fetcher struct {
	searcher Searcher
	results  *cache.ResultCache[*Postings]
	ttl      time.Duration
	group    singleflight.Group
	logger   *zap.Logger
}

// NewFetcher creates a fetcher. A nil results cache gets the default capacity and TTL.
func NewFetcher(searcher Searcher, results *cache.ResultCache[*Postings], ttl time.Duration, logger *zap.Logger) *Fetcher {
	if results == nil {
		results = cache.NewResultCache[*Postings](cache.DefaultResultCapacity, cache.DefaultResultTTL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		searcher: searcher,
		results:  results,
		ttl:      ttl,
		logger:   logger,
	}
}

// FetchResult describes where the postings came from.
type FetchResult struct {
	Postings  *Postings
	Cached    bool
	FetchedAt time.Time
}

// Fetch returns postings for params. forceRefresh skips the cache lookup but
// still stores the fresh result. The returned list is a copy the caller may
// filter freely.
func (f *Fetcher) Fetch(ctx context.Context, params SearchParams, forceRefresh bool) (FetchResult, error) {
	params = params.WithDefaults()
	key := params.CacheKey()

	if !forceRefresh {
		if entry, ok := f.results.Get(key); ok {
			f.logger.Info("using cached search results",
				zap.String("query", params.Query),
				zap.Int("postings", entry.Value.Len()),
				zap.Time("fetched_at", entry.CreatedAt),
			)
			return FetchResult{Postings: entry.Value.Clone(), Cached: true, FetchedAt: entry.CreatedAt}, nil
		}
	}

	value, err, shared := f.group.Do(key, func() (any, error) {
		postings, err := f.searcher.Search(ctx, params)
		if err != nil {
			return nil, err
		}
		f.results.Put(key, postings, f.ttl)
		return postings, nil
	})
	if err != nil {
		return FetchResult{}, err
	}

	postings := value.(*Postings)
	f.logger.Info("fetched search results",
		zap.String("query", params.Query),
		zap.Int("postings", postings.Len()),
		zap.Bool("shared", shared),
	)

	entry, _ := f.results.Get(key)
	return FetchResult{Postings: postings.Clone(), FetchedAt: entry.CreatedAt}, nil
}
