package prolly

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
)

func TestContainerRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.MaxInlineValueSize = 8

	rootH, err := insertOne(ctx, store, cfg, nil, []byte("a"), ValueRepr{Inline: []byte("1")})
	require.NoError(t, err)
	rootH, err = insertOne(ctx, store, cfg, &rootH, []byte("b"), ValueRepr{Inline: []byte("two-ok")})
	require.NoError(t, err)

	blob, err := saveContainer(ctx, store, cfg, &rootH, "a test container")
	require.NoError(t, err)
	require.True(t, len(blob) > 16)
	require.Equal(t, "PRLY", string(blob[:4]))

	store2 := chunks.NewMemoryStore()
	loadedCfg, loadedRoot, desc, err := loadContainer(ctx, store2, blob)
	require.NoError(t, err)
	require.Equal(t, cfg, loadedCfg)
	require.Equal(t, "a test container", desc)
	require.NotNil(t, loadedRoot)
	require.Equal(t, rootH, *loadedRoot)

	page, err := scanItems(ctx, store2, loadedRoot, DefaultScanOptions())
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, "a", string(page.Items[0].Key))
	require.Equal(t, "1", string(page.Items[0].Value))
	require.Equal(t, "b", string(page.Items[1].Key))
	require.Equal(t, "two-ok", string(page.Items[1].Value))
}

func TestContainerRejectsCorruptTrailer(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemoryStore()
	cfg := DefaultConfig()

	rootH, err := insertOne(ctx, store, cfg, nil, []byte("a"), ValueRepr{Inline: []byte("1")})
	require.NoError(t, err)

	blob, err := saveContainer(ctx, store, cfg, &rootH, "")
	require.NoError(t, err)

	corrupt := append([]byte{}, blob...)
	corrupt[len(corrupt)-1] ^= 0xff

	store2 := chunks.NewMemoryStore()
	_, _, _, err = loadContainer(ctx, store2, corrupt)
	require.Error(t, err)
	var cerr *CorruptContainerError
	require.ErrorAs(t, err, &cerr)
}

func TestContainerRejectsBadMagic(t *testing.T) {
	ctx := context.Background()
	store2 := chunks.NewMemoryStore()
	_, _, _, err := loadContainer(ctx, store2, []byte("not a container at all, padded out"))
	require.Error(t, err)
}

func TestContainerWithNoRoot(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemoryStore()
	cfg := DefaultConfig()

	blob, err := saveContainer(ctx, store, cfg, nil, "")
	require.NoError(t, err)

	store2 := chunks.NewMemoryStore()
	loadedCfg, loadedRoot, _, err := loadContainer(ctx, store2, blob)
	require.NoError(t, err)
	require.Equal(t, cfg, loadedCfg)
	require.Nil(t, loadedRoot)
}
