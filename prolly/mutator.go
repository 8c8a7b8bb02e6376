package prolly

import (
	"bytes"
	"context"
	"sort"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// splitResult describes one sibling node produced by a (possibly
// splitting) subtree rewrite: its hash, its boundary key, and its item
// count, everything a parent needs to splice into its own entry list in
// place of the one it just rewrote.
type splitResult struct {
	Hash        hash.Hash
	BoundaryKey []byte
	Count       uint64
}

// childSlot finds the index of the child an insert/delete for key should
// route to: the smallest index whose BoundaryKey >= key, or the last
// child if key is greater than every boundary.
func childSlot(entries []InternalEntry, key []byte) int {
	idx := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].BoundaryKey, key) >= 0
	})
	if idx == len(entries) {
		idx = len(entries) - 1
	}
	return idx
}

// insertRec recursively rewrites the subtree named by nodeHash (nil for
// an empty tree) to include key->value, returning the one or more
// sibling nodes that should replace it in the parent (more than one only
// when this call's own rewrite overflowed and split).
func insertRec(ctx context.Context, store chunks.Store, cfg Config, nodeHash *hash.Hash, level uint16, key []byte, value ValueRepr) ([]splitResult, error) {
	if nodeHash == nil {
		leaf := NewLeafNode([]LeafEntry{{Key: key, Value: value}})
		h, err := writeNode(ctx, store, leaf)
		if err != nil {
			return nil, err
		}
		return []splitResult{{Hash: h, BoundaryKey: key, Count: 1}}, nil
	}

	n, err := readNode(ctx, store, *nodeHash)
	if err != nil {
		return nil, err
	}

	if n.IsLeaf() {
		return insertIntoLeaf(ctx, store, cfg, n, key, value)
	}
	return insertIntoInternal(ctx, store, cfg, n, key, value)
}

func insertIntoLeaf(ctx context.Context, store chunks.Store, cfg Config, n Node, key []byte, value ValueRepr) ([]splitResult, error) {
	entries := n.Leaves
	idx := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].Key, key) >= 0
	})
	if idx < len(entries) && bytes.Equal(entries[idx].Key, key) {
		updated := make([]LeafEntry, len(entries))
		copy(updated, entries)
		updated[idx] = LeafEntry{Key: key, Value: value}
		entries = updated
	} else {
		updated := make([]LeafEntry, 0, len(entries)+1)
		updated = append(updated, entries[:idx]...)
		updated = append(updated, LeafEntry{Key: key, Value: value})
		updated = append(updated, entries[idx:]...)
		entries = updated
	}

	return writeLeafSegments(ctx, store, cfg, entries)
}

func writeLeafSegments(ctx context.Context, store chunks.Store, cfg Config, entries []LeafEntry) ([]splitResult, error) {
	bounds := splitEntries(len(entries), cfg.MinFanout, cfg.TargetFanout, func(i int) []byte { return entries[i].Key })
	if bounds == nil {
		bounds = []int{len(entries)}
	}

	results := make([]splitResult, 0, len(bounds))
	start := 0
	for _, end := range bounds {
		seg := entries[start:end]
		h, err := writeNode(ctx, store, NewLeafNode(seg))
		if err != nil {
			return nil, err
		}
		results = append(results, splitResult{Hash: h, BoundaryKey: seg[len(seg)-1].Key, Count: uint64(len(seg))})
		start = end
	}
	return results, nil
}

func insertIntoInternal(ctx context.Context, store chunks.Store, cfg Config, n Node, key []byte, value ValueRepr) ([]splitResult, error) {
	idx := childSlot(n.Internals, key)
	childResults, err := insertRec(ctx, store, cfg, &n.Internals[idx].ChildHash, n.Level-1, key, value)
	if err != nil {
		return nil, err
	}

	spliced := make([]InternalEntry, 0, len(n.Internals)+len(childResults))
	spliced = append(spliced, n.Internals[:idx]...)
	for _, r := range childResults {
		spliced = append(spliced, InternalEntry{BoundaryKey: r.BoundaryKey, ChildHash: r.Hash, NumItemsSubtree: r.Count})
	}
	spliced = append(spliced, n.Internals[idx+1:]...)

	return writeInternalSegments(ctx, store, cfg, n.Level, spliced)
}

func writeInternalSegments(ctx context.Context, store chunks.Store, cfg Config, level uint16, entries []InternalEntry) ([]splitResult, error) {
	bounds := splitEntries(len(entries), cfg.MinFanout, cfg.TargetFanout, func(i int) []byte { return entries[i].BoundaryKey })
	if bounds == nil {
		bounds = []int{len(entries)}
	}

	results := make([]splitResult, 0, len(bounds))
	start := 0
	for _, end := range bounds {
		seg := entries[start:end]
		h, err := writeNode(ctx, store, NewInternalNode(level, seg))
		if err != nil {
			return nil, err
		}
		var count uint64
		for _, e := range seg {
			count += e.NumItemsSubtree
		}
		results = append(results, splitResult{Hash: h, BoundaryKey: seg[len(seg)-1].BoundaryKey, Count: count})
		start = end
	}
	return results, nil
}

// insertOne applies a single insert to the tree rooted at rootHash
// (nil for empty), returning the new root hash. If the top-level rewrite
// produced more than one sibling (the root itself split), a new internal
// level is created, increasing height.
func insertOne(ctx context.Context, store chunks.Store, cfg Config, rootHash *hash.Hash, key []byte, value ValueRepr) (hash.Hash, error) {
	level := uint16(0)
	if rootHash != nil {
		root, err := readNode(ctx, store, *rootHash)
		if err != nil {
			return hash.Hash{}, err
		}
		level = root.Level
	}

	results, err := insertRec(ctx, store, cfg, rootHash, level, key, value)
	if err != nil {
		return hash.Hash{}, err
	}
	return rootFromResults(ctx, store, level, results)
}

func rootFromResults(ctx context.Context, store chunks.Store, level uint16, results []splitResult) (hash.Hash, error) {
	if len(results) == 1 {
		return results[0].Hash, nil
	}
	entries := make([]InternalEntry, len(results))
	for i, r := range results {
		entries[i] = InternalEntry{BoundaryKey: r.BoundaryKey, ChildHash: r.Hash, NumItemsSubtree: r.Count}
	}
	return writeNode(ctx, store, NewInternalNode(level+1, entries))
}

// insertBatchSorted applies a batch of already-sorted, de-duplicated
// (key, value) pairs to the tree as a sequence of ordinary single
// inserts. The resulting root hash is therefore identical, by
// construction, to applying the same inserts one at a time in sorted
// order. See DESIGN.md for the amortization tradeoff this accepts
// versus a single descent per contiguous leaf run.
func insertBatchSorted(ctx context.Context, store chunks.Store, cfg Config, rootHash *hash.Hash, items []struct {
	Key   []byte
	Value ValueRepr
}) (hash.Hash, error) {
	var cur *hash.Hash
	if rootHash != nil {
		h := *rootHash
		cur = &h
	}
	for _, it := range items {
		h, err := insertOne(ctx, store, cfg, cur, it.Key, it.Value)
		if err != nil {
			return hash.Hash{}, err
		}
		cur = &h
	}
	if cur == nil {
		return hash.Hash{}, nil
	}
	return *cur, nil
}
