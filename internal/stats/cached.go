package stats

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// Cached memoises successful answers of another provider. Explaining a tree asks for the same
// relation repeatedly, and each answer is a database round-trip for the Postgres provider.
// Errors are not cached.
type Cached struct {
	next  Provider
	cache *lru.Cache
}

var _ Provider = (*Cached)(nil)

type cacheKey struct {
	stat      string
	relation  string
	attribute string
}

// NewCached wraps next with an LRU cache holding up to size answers.
func NewCached(next Provider, size int) (*Cached, error) {
	if next == nil {
		return nil, fmt.Errorf("stats: nil provider")
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("stats: create cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) lookup(key cacheKey, load func() (int64, error)) (int64, error) {
	if v, ok := c.cache.Get(key); ok {
		return v.(int64), nil
	}
	v, err := load()
	if err != nil {
		return 0, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *Cached) BlockCount(ctx context.Context, relation string) (int64, error) {
	return c.lookup(cacheKey{stat: StatBlocks, relation: relation}, func() (int64, error) {
		return c.next.BlockCount(ctx, relation)
	})
}

func (c *Cached) TupleCount(ctx context.Context, relation string) (int64, error) {
	return c.lookup(cacheKey{stat: StatTuples, relation: relation}, func() (int64, error) {
		return c.next.TupleCount(ctx, relation)
	})
}

func (c *Cached) BufferSize(ctx context.Context) (int64, error) {
	return c.lookup(cacheKey{stat: StatBuffer}, func() (int64, error) {
		return c.next.BufferSize(ctx)
	})
}

func (c *Cached) DistinctCount(ctx context.Context, relation, attribute string) (int64, error) {
	return c.lookup(cacheKey{stat: StatDistinct, relation: relation, attribute: attribute}, func() (int64, error) {
		return c.next.DistinctCount(ctx, relation, attribute)
	})
}
