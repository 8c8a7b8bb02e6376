package chunks

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// Cached decorates a Store with a bounded LRU decode cache keyed by
// hash. Repeated node loads during a cursor walk or a diff descend the
// same hashes many times, and the underlying Store may be arbitrarily
// slow, so caching raw bytes by hash avoids redundant fetches.
type Cached struct {
	inner Store
	cache *lru.Cache[hash.Hash, []byte]
}

// NewCached wraps inner with an LRU cache holding up to size entries.
func NewCached(inner Store, size int) *Cached {
	c, err := lru.New[hash.Hash, []byte](size)
	if err != nil {
		// Only returns an error for size <= 0; fall back to a minimal cache.
		c, _ = lru.New[hash.Hash, []byte](1)
	}
	return &Cached{inner: inner, cache: c}
}

func (c *Cached) Get(ctx context.Context, h hash.Hash) (Chunk, error) {
	if b, ok := c.cache.Get(h); ok {
		return Chunk{h: h, data: b}, nil
	}
	ch, err := c.inner.Get(ctx, h)
	if err != nil {
		return Chunk{}, err
	}
	c.cache.Add(h, ch.data)
	return ch, nil
}

func (c *Cached) Put(ctx context.Context, ch Chunk) error {
	if err := c.inner.Put(ctx, ch); err != nil {
		return err
	}
	c.cache.Add(ch.h, ch.data)
	return nil
}

func (c *Cached) Has(ctx context.Context, h hash.Hash) (bool, error) {
	if c.cache.Contains(h) {
		return true, nil
	}
	return c.inner.Has(ctx, h)
}

func (c *Cached) HasMany(ctx context.Context, hs hash.Set) (hash.Set, error) {
	return c.inner.HasMany(ctx, hs)
}

func (c *Cached) Delete(ctx context.Context, h hash.Hash) error {
	c.cache.Remove(h)
	return c.inner.Delete(ctx, h)
}

func (c *Cached) Keys(ctx context.Context) (<-chan hash.Hash, error) {
	return c.inner.Keys(ctx)
}

func (c *Cached) Size(ctx context.Context) (uint64, error) {
	return c.inner.Size(ctx)
}

// Purge empties the decode cache without affecting the underlying store.
func (c *Cached) Purge() {
	c.cache.Purge()
}
