package prolly

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// GcStats summarizes one triggerGc run.
type GcStats struct {
	ChunksBefore int
	ChunksAfter  int
	ChunksFreed  int
}

// triggerGc walks every chunk reachable from liveRoots (node chunks via
// internal child hashes, and leaf values' chunk descriptors) and deletes
// anything else in store. Each root's reachability walk runs as its own
// goroutine via an errgroup, sharing one mutex-guarded visited set so
// overlapping subtrees across roots are only fetched once.
func triggerGc(ctx context.Context, store chunks.Store, liveRoots []hash.Hash) (GcStats, error) {
	before, err := store.Size(ctx)
	if err != nil {
		return GcStats{}, err
	}

	live := hash.NewSet()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range liveRoots {
		root := root
		g.Go(func() error {
			return walkReachable(gctx, store, root, live, &mu)
		})
	}
	if err := g.Wait(); err != nil {
		return GcStats{}, err
	}

	keysCh, err := store.Keys(ctx)
	if err != nil {
		return GcStats{}, err
	}
	for k := range keysCh {
		if live.Has(k) {
			continue
		}
		if err := store.Delete(ctx, k); err != nil {
			return GcStats{}, err
		}
	}

	after, err := store.Size(ctx)
	if err != nil {
		return GcStats{}, err
	}
	return GcStats{ChunksBefore: int(before), ChunksAfter: int(after), ChunksFreed: int(before) - int(after)}, nil
}

// walkReachable marks h and everything it transitively references as
// live. mu guards concurrent inserts into live from sibling root walks
// running in parallel goroutines.
func walkReachable(ctx context.Context, store chunks.Store, h hash.Hash, live hash.Set, mu *sync.Mutex) error {
	mu.Lock()
	already := live.Has(h)
	if !already {
		live.Insert(h)
	}
	mu.Unlock()
	if already {
		return nil
	}

	n, err := readNode(ctx, store, h)
	if err != nil {
		return err
	}

	if n.IsLeaf() {
		for _, e := range n.Leaves {
			if e.Value.IsInline() {
				continue
			}
			for _, d := range e.Value.Chunks {
				mu.Lock()
				seen := live.Has(d.Hash)
				if !seen {
					live.Insert(d.Hash)
				}
				mu.Unlock()
				if seen {
					continue
				}
				ok, err := store.Has(ctx, d.Hash)
				if err != nil {
					return err
				}
				if !ok {
					return &ChunkNotFoundError{Hash: d.Hash}
				}
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range n.Internals {
		child := e.ChildHash
		g.Go(func() error {
			return walkReachable(gctx, store, child, live, mu)
		})
	}
	return g.Wait()
}
