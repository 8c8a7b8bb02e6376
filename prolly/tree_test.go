package prolly

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

func TestS1BasicPutGet(t *testing.T) {
	ctx := context.Background()
	tr, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, tr.Insert(ctx, []byte("hello"), []byte("world")))
	require.NoError(t, tr.Insert(ctx, []byte("goodbye"), []byte("moon")))

	v, ok, err := tr.Get(ctx, []byte("hello"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "world", string(v))

	v, ok, err = tr.Get(ctx, []byte("goodbye"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "moon", string(v))

	_, ok, err = tr.Get(ctx, []byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)

	root := tr.GetRootHash()
	require.NotNil(t, root)
	require.False(t, root.IsEmpty())
}

func TestS2OrderIndependence(t *testing.T) {
	ctx := context.Background()
	trA, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)
	trB, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)

	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		require.NoError(t, trA.Insert(ctx, []byte(kv[0]), []byte(kv[1])))
	}
	for _, kv := range [][2]string{{"c", "3"}, {"a", "1"}, {"b", "2"}} {
		require.NoError(t, trB.Insert(ctx, []byte(kv[0]), []byte(kv[1])))
	}

	require.Equal(t, *trA.GetRootHash(), *trB.GetRootHash())
}

func smallFanoutConfig() Config {
	cfg := DefaultConfig()
	cfg.TargetFanout = 4
	cfg.MinFanout = 2
	return cfg
}

func TestS3SplitAtSmallFanout(t *testing.T) {
	ctx := context.Background()
	tr, err := New(chunks.NewMemoryStore(), smallFanoutConfig(), nil)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		k := keyN(i)
		require.NoError(t, tr.Insert(ctx, k, []byte("v_"+string(k))))
	}

	v, ok, err := tr.Get(ctx, keyN(3))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v_k03", string(v))
}

func keyN(i int) []byte {
	return []byte{'k', '0' + byte(i/10), '0' + byte(i%10)}
}

func TestS4DeleteTriggersMergeAndCollapse(t *testing.T) {
	ctx := context.Background()
	tr, err := New(chunks.NewMemoryStore(), smallFanoutConfig(), nil)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		k := keyN(i)
		require.NoError(t, tr.Insert(ctx, k, []byte("v_"+string(k))))
	}

	found, err := tr.Delete(ctx, keyN(4))
	require.NoError(t, err)
	require.True(t, found)
	found, err = tr.Delete(ctx, keyN(5))
	require.NoError(t, err)
	require.True(t, found)

	for i := 1; i <= 3; i++ {
		v, ok, err := tr.Get(ctx, keyN(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "v_"+string(keyN(i)), string(v))
	}
	for i := 4; i <= 5; i++ {
		_, ok, err := tr.Get(ctx, keyN(i))
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestS6DiffMixed(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemoryStore()
	tr, err := New(store, DefaultConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, tr.Insert(ctx, []byte("a"), []byte("1")))
	require.NoError(t, tr.Insert(ctx, []byte("b"), []byte("2")))
	require.NoError(t, tr.Insert(ctx, []byte("c"), []byte("3")))
	r1 := *tr.GetRootHash()

	_, err = tr.Delete(ctx, []byte("c"))
	require.NoError(t, err)
	require.NoError(t, tr.Insert(ctx, []byte("b"), []byte("2_mod")))
	require.NoError(t, tr.Insert(ctx, []byte("d"), []byte("4")))
	r2 := *tr.GetRootHash()

	diffs, err := tr.DiffRoots(ctx, &r1, &r2)
	require.NoError(t, err)
	require.Len(t, diffs, 3)
	require.Equal(t, "b", string(diffs[0].Key))
	require.Equal(t, "2", string(diffs[0].LeftValue))
	require.Equal(t, "2_mod", string(diffs[0].RightValue))
	require.Equal(t, "c", string(diffs[1].Key))
	require.Equal(t, "3", string(diffs[1].LeftValue))
	require.Nil(t, diffs[1].RightValue)
	require.Equal(t, "d", string(diffs[2].Key))
	require.Nil(t, diffs[2].LeftValue)
	require.Equal(t, "4", string(diffs[2].RightValue))
}

func TestS7GcPreservesLiveReclaimsOrphan(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.MaxInlineValueSize = 32
	tr, err := New(store, cfg, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Insert(ctx, []byte("live1"), []byte("v1")))
	r1 := *tr.GetRootHash()
	_ = r1

	big := make([]byte, 2300)
	for i := range big {
		big[i] = byte(i % 251)
	}
	require.NoError(t, tr.Insert(ctx, []byte("live2"), big))
	r2 := *tr.GetRootHash()

	stats, err := tr.TriggerGc(ctx, []hash.Hash{r2})
	require.NoError(t, err)
	require.Equal(t, 1, stats.ChunksFreed)

	v, ok, err := tr.Get(ctx, []byte("live2"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, big, v)
}

func TestEventFiresOnlyWhenRootChanges(t *testing.T) {
	ctx := context.Background()
	tr, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)

	var events []Event
	tr.OnChange(func(e Event) { events = append(events, e) })

	require.NoError(t, tr.Insert(ctx, []byte("a"), []byte("1")))
	require.Len(t, events, 1)

	require.NoError(t, tr.Insert(ctx, []byte("a"), []byte("1")))
	require.Len(t, events, 1, "re-inserting the same key/value should leave the root hash unchanged and fire nothing")

	ok, err := tr.Delete(ctx, []byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, events, 1, "deleting an absent key fires nothing")
}

func TestSyncVariantsAgreeWithBlocking(t *testing.T) {
	ctx := context.Background()
	tr1, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)
	tr2, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, tr1.Insert(ctx, []byte("x"), []byte("1")))
	require.NoError(t, tr2.InsertSync(ctx, []byte("x"), []byte("1")))

	require.Equal(t, *tr1.GetRootHash(), *tr2.GetRootHash())
}

func TestGetSyncBusyWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	tr, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, tr.Insert(ctx, []byte("a"), []byte("1")))

	tr.mu.Lock()
	_, _, err = tr.GetSync(ctx, []byte("a"))
	tr.mu.Unlock()

	var busy *BusyError
	require.ErrorAs(t, err, &busy)
}

func TestListenerCanCallBackIntoTreeWithoutDeadlock(t *testing.T) {
	ctx := context.Background()
	tr, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)

	var sawDuringCallback []byte
	tr.OnChange(func(e Event) {
		v, ok, err := tr.Get(ctx, []byte("a"))
		require.NoError(t, err)
		require.True(t, ok)
		sawDuringCallback = v
	})

	require.NoError(t, tr.Insert(ctx, []byte("a"), []byte("1")))
	require.Equal(t, "1", string(sawDuringCallback))
}

func TestGetSyncInsideListenerIsNotBusy(t *testing.T) {
	ctx := context.Background()
	tr, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, tr.Insert(ctx, []byte("seed"), []byte("0")))

	var busyErr error
	tr.OnChange(func(e Event) {
		_, _, busyErr = tr.GetSync(ctx, []byte("seed"))
	})

	require.NoError(t, tr.Insert(ctx, []byte("a"), []byte("1")))
	require.NoError(t, busyErr, "a listener running after mu is released must not see a spurious Busy")
}

func TestContainerRoundTripAtTreeLevel(t *testing.T) {
	ctx := context.Background()
	tr, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, tr.Insert(ctx, []byte("a"), []byte("1")))
	require.NoError(t, tr.Insert(ctx, []byte("b"), []byte("2")))

	blob, err := tr.Save(ctx, "snapshot")
	require.NoError(t, err)

	tr2, desc, err := Load(ctx, chunks.NewMemoryStore(), blob, nil)
	require.NoError(t, err)
	require.Equal(t, "snapshot", desc)
	require.Equal(t, *tr.GetRootHash(), *tr2.GetRootHash())

	v, ok, err := tr2.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))
}

func TestInsertBatchMatchesSequentialInserts(t *testing.T) {
	ctx := context.Background()
	trBatch, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)
	trSeq, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)

	items := []BatchItem{
		{Key: []byte("z"), Value: []byte("26")},
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("m"), Value: []byte("13")},
	}
	require.NoError(t, trBatch.InsertBatch(ctx, items))

	for _, it := range []BatchItem{items[1], items[2], items[0]} {
		require.NoError(t, trSeq.Insert(ctx, it.Key, it.Value))
	}

	require.Equal(t, *trSeq.GetRootHash(), *trBatch.GetRootHash())
}

func TestScanMatchesCursorDrain(t *testing.T) {
	ctx := context.Background()
	tr, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)

	for _, k := range []string{"d", "b", "a", "c"} {
		require.NoError(t, tr.Insert(ctx, []byte(k), []byte(k+"v")))
	}

	page, err := tr.Scan(ctx, DefaultScanOptions())
	require.NoError(t, err)

	cur, err := tr.CursorStart(ctx)
	require.NoError(t, err)
	var drained []Item
	for cur.Valid() {
		v, err := decodeValue(ctx, cur.ValueRepr(), nil)
		require.NoError(t, err) // inline-only values here; store unused
		drained = append(drained, Item{Key: append([]byte{}, cur.Key()...), Value: v})
		require.NoError(t, cur.Advance(ctx))
	}

	require.Equal(t, len(drained), len(page.Items))
	for i := range drained {
		require.Equal(t, string(drained[i].Key), string(page.Items[i].Key))
		require.Equal(t, string(drained[i].Value), string(page.Items[i].Value))
	}
}

func TestNewFromRootWithExportedChunksReproducesTree(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MaxInlineValueSize = 32
	tr, err := New(chunks.NewMemoryStore(), cfg, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Insert(ctx, []byte("a"), []byte("1")))
	big := make([]byte, 2300)
	for i := range big {
		big[i] = byte(i % 251)
	}
	require.NoError(t, tr.Insert(ctx, []byte("big"), big))

	seed, err := tr.ExportChunks(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, seed)

	tr2, err := NewFromRoot(ctx, chunks.NewMemoryStore(), cfg, *tr.GetRootHash(), seed, nil)
	require.NoError(t, err)
	require.Equal(t, *tr.GetRootHash(), *tr2.GetRootHash())

	v, ok, err := tr2.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))

	v, ok, err = tr2.Get(ctx, []byte("big"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, big, v)
}

func TestNewFromRootMissingAncestorIsChunkNotFound(t *testing.T) {
	ctx := context.Background()
	tr, err := New(chunks.NewMemoryStore(), DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, tr.Insert(ctx, []byte("a"), []byte("1")))

	seed, err := tr.ExportChunks(ctx)
	require.NoError(t, err)
	for h := range seed {
		delete(seed, h)
		break
	}

	_, err = NewFromRoot(ctx, chunks.NewMemoryStore(), DefaultConfig(), *tr.GetRootHash(), seed, nil)
	require.Error(t, err)
	var nf *ChunkNotFoundError
	require.ErrorAs(t, err, &nf)
}
