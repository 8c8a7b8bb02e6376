package chunks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c := NewChunk([]byte("payload"))
	require.NoError(t, s.Put(ctx, c))

	got, err := s.Get(ctx, c.Hash())
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got.Data())
}

func TestMemoryStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, hash.Of([]byte("nope")))
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestMemoryStorePutIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c := NewChunk([]byte("dup"))
	require.NoError(t, s.Put(ctx, c))
	require.NoError(t, s.Put(ctx, c))

	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestMemoryStoreHasManyDeleteKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := NewChunk([]byte("a"))
	b := NewChunk([]byte("b"))
	require.NoError(t, s.Put(ctx, a))
	require.NoError(t, s.Put(ctx, b))

	found, err := s.HasMany(ctx, hash.NewSet(a.Hash(), b.Hash(), hash.Of([]byte("missing"))))
	require.NoError(t, err)
	assert.Equal(t, 2, found.Size())

	require.NoError(t, s.Delete(ctx, a.Hash()))
	ok, err := s.Has(ctx, a.Hash())
	require.NoError(t, err)
	assert.False(t, ok)

	ch, err := s.Keys(ctx)
	require.NoError(t, err)
	var keys []hash.Hash
	for h := range ch {
		keys = append(keys, h)
	}
	assert.Len(t, keys, 1)
}

func TestCachedServesFromCacheWithoutHittingInner(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	c := NewChunk([]byte("cached payload"))
	require.NoError(t, inner.Put(ctx, c))

	cached := NewCached(inner, 8)
	got, err := cached.Get(ctx, c.Hash())
	require.NoError(t, err)
	assert.Equal(t, c.Data(), got.Data())

	require.NoError(t, inner.Delete(ctx, c.Hash()))

	// Still served from the decode cache even though inner no longer has it.
	got, err = cached.Get(ctx, c.Hash())
	require.NoError(t, err)
	assert.Equal(t, c.Data(), got.Data())

	cached.Purge()
	_, err = cached.Get(ctx, c.Hash())
	assert.Error(t, err)
}
