package retriever

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/applymate/agent-go/core"
)

// Cached wraps a Retriever with a read-through ristretto cache. Repeated
// queries within a turn (or across quick follow-ups) skip the embedding
// round trip entirely.
type Cached struct {
	inner Retriever
	cache *ristretto.Cache
	ttl   time.Duration
}

var _ Retriever = (*Cached)(nil)

// NewCached wraps inner with a cache holding roughly maxEntries results
// for ttl.
func NewCached(inner Retriever, maxEntries int64, ttl time.Duration) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache, ttl: ttl}, nil
}

func (c *Cached) Search(ctx context.Context, namespace, query string, k int) ([]core.RetrievedDocument, error) {
	key := fmt.Sprintf("%s\x00%s\x00%d", namespace, query, k)
	if hit, ok := c.cache.Get(key); ok {
		if docs, ok := hit.([]core.RetrievedDocument); ok {
			return docs, nil
		}
	}

	docs, err := c.inner.Search(ctx, namespace, query, k)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(key, docs, 1, c.ttl)
	return docs, nil
}

// Wait blocks until buffered cache writes are applied. Tests use it to
// make hits deterministic.
func (c *Cached) Wait() { c.cache.Wait() }

// Close releases the cache's internal goroutines.
func (c *Cached) Close() { c.cache.Close() }
