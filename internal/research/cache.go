package research

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"gem-assistant/internal/models"
)

// EntryStore is the durable backing store for cached research results.
type EntryStore interface {
	// GetResearch returns the stored result for key, or nil when absent.
	GetResearch(ctx context.Context, key string) (*models.ResearchResult, error)
	// PutResearch stores the result under key, replacing any prior entry.
	PutResearch(ctx context.Context, key string, result models.ResearchResult) error
	// DeleteResearch removes the entry for key.
	DeleteResearch(ctx context.Context, key string) error
}

// FetchFunc produces a fresh research result on a cache miss.
type FetchFunc func(ctx context.Context) (models.ResearchResult, error)

// Cache memoizes research results keyed by (subject, scope, day bucket)
// with a TTL. Singleflight collapses concurrent callers for the same
// key onto one in-flight fetch; expired entries are evicted lazily on
// the next lookup.
type Cache struct {
	store  EntryStore
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
	sf     singleflight.Group
}

// NewCache creates a research cache over the given backing store.
func NewCache(store EntryStore, ttl time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("component", "research_cache").Logger(),
	}
}

// Key builds the composite cache key for a subject and scope on the
// current day bucket.
func (c *Cache) Key(subject, scope string) string {
	return fmt.Sprintf("%s|%s|%s", subject, scope, c.now().UTC().Format("2006-01-02"))
}

// GetOrFetch returns the cached result for (subject, scope) or invokes
// fetch to produce one, storing it with expiry = now + TTL. At most one
// fetch runs per key at a time; concurrent callers await its result.
func (c *Cache) GetOrFetch(ctx context.Context, subject, scope string, fetch FetchFunc) (models.ResearchResult, error) {
	key := c.Key(subject, scope)

	ch := c.sf.DoChan(key, func() (interface{}, error) {
		return c.lookupOrFetch(ctx, key, subject, scope, fetch)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.ResearchResult{}, res.Err
		}
		return res.Val.(models.ResearchResult), nil
	case <-ctx.Done():
		return models.ResearchResult{}, ctx.Err()
	}
}

// lookupOrFetch runs inside the singleflight for key: checks the
// backing store first, evicts an expired entry, and pays for fetch
// only on a genuine miss.
func (c *Cache) lookupOrFetch(ctx context.Context, key, subject, scope string, fetch FetchFunc) (models.ResearchResult, error) {
	if cached, err := c.store.GetResearch(ctx, key); err == nil && cached != nil {
		if !cached.Expired(c.now()) {
			c.logger.Debug().Str("key", key).Msg("Cache hit")
			return *cached, nil
		}
		c.logger.Debug().Str("key", key).Msg("Evicting expired entry")
		if err := c.store.DeleteResearch(ctx, key); err != nil {
			c.logger.Warn().Str("key", key).Err(err).Msg("Failed to evict expired entry")
		}
	}

	c.logger.Debug().Str("key", key).Msg("Cache miss, fetching")
	result, err := fetch(ctx)
	if err != nil {
		return models.ResearchResult{}, err
	}

	now := c.now()
	result.Subject = subject
	result.Scope = scope
	result.GeneratedAt = now
	result.ExpiresAt = now.Add(c.ttl)

	if err := c.store.PutResearch(ctx, key, result); err != nil {
		// A failed cache write must not lose a paid result.
		c.logger.Warn().Str("key", key).Err(err).Msg("Failed to store research result")
	}
	return result, nil
}
