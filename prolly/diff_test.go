package prolly

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

func TestDiffIdenticalRootsIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemoryStore()
	cfg := DefaultConfig()

	h, err := insertOne(ctx, store, cfg, nil, []byte("a"), ValueRepr{Inline: []byte("1")})
	require.NoError(t, err)

	diffs, err := diffRoots(ctx, store, &h, &h)
	require.NoError(t, err)
	require.Empty(t, diffs)
}

func TestDiffAdditionDeletionModification(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemoryStore()
	cfg := DefaultConfig()

	h1, err := insertOne(ctx, store, cfg, nil, []byte("a"), ValueRepr{Inline: []byte("1")})
	require.NoError(t, err)
	h1, err = insertOne(ctx, store, cfg, &h1, []byte("b"), ValueRepr{Inline: []byte("2")})
	require.NoError(t, err)
	h1, err = insertOne(ctx, store, cfg, &h1, []byte("c"), ValueRepr{Inline: []byte("3")})
	require.NoError(t, err)

	h2, err := insertOne(ctx, store, cfg, &h1, []byte("b"), ValueRepr{Inline: []byte("22")})
	require.NoError(t, err)
	h2ptr := &h2
	h2ptr, _, err = deleteOne(ctx, store, cfg, h2ptr, []byte("c"))
	require.NoError(t, err)
	h2, err = insertOne(ctx, store, cfg, h2ptr, []byte("d"), ValueRepr{Inline: []byte("4")})
	require.NoError(t, err)

	diffs, err := diffRoots(ctx, store, &h1, &h2)
	require.NoError(t, err)

	require.Len(t, diffs, 3)
	require.Equal(t, "b", string(diffs[0].Key))
	require.Equal(t, "2", string(diffs[0].LeftValue))
	require.Equal(t, "22", string(diffs[0].RightValue))
	require.Equal(t, "c", string(diffs[1].Key))
	require.Equal(t, "3", string(diffs[1].LeftValue))
	require.Nil(t, diffs[1].RightValue)
	require.Equal(t, "d", string(diffs[2].Key))
	require.Nil(t, diffs[2].LeftValue)
	require.Equal(t, "4", string(diffs[2].RightValue))
}

func TestDiffAgainstEmptyTreeIsAllAdditions(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemoryStore()
	cfg := DefaultConfig()

	h, err := insertOne(ctx, store, cfg, nil, []byte("x"), ValueRepr{Inline: []byte("1")})
	require.NoError(t, err)
	h, err = insertOne(ctx, store, cfg, &h, []byte("y"), ValueRepr{Inline: []byte("2")})
	require.NoError(t, err)

	diffs, err := diffRoots(ctx, store, nil, &h)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
	for _, d := range diffs {
		require.Nil(t, d.LeftValue)
		require.NotNil(t, d.RightValue)
	}

	diffs, err = diffRoots(ctx, store, &h, nil)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
	for _, d := range diffs {
		require.NotNil(t, d.LeftValue)
		require.Nil(t, d.RightValue)
	}
}

func TestDiffLargeTreesPrunesSharedSubtrees(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemoryStore()
	cfg := DefaultConfig()

	var cur *hash.Hash
	for i := 0; i < 500; i++ {
		key := []byte{byte(i >> 8), byte(i)}
		h, err := insertOne(ctx, store, cfg, cur, key, ValueRepr{Inline: key})
		require.NoError(t, err)
		cur = &h
	}

	base := *cur
	changedH, err := insertOne(ctx, store, cfg, cur, []byte{0xff, 0xff}, ValueRepr{Inline: []byte("new")})
	require.NoError(t, err)

	diffs, err := diffRoots(ctx, store, &base, &changedH)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, []byte{0xff, 0xff}, diffs[0].Key)
}
