package prolly

import (
	"bytes"
	"context"
	"sort"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// deleteOne removes key from the tree rooted at rootHash, returning the
// new root hash (nil if the tree becomes empty), whether the key
// existed, and any error. A delete of an absent key returns found=false
// and an unchanged root, firing no event.
func deleteOne(ctx context.Context, store chunks.Store, cfg Config, rootHash *hash.Hash, key []byte) (*hash.Hash, bool, error) {
	if rootHash == nil {
		return nil, false, nil
	}
	root, err := readNode(ctx, store, *rootHash)
	if err != nil {
		return nil, false, err
	}

	if root.IsLeaf() {
		idx, found := findLeafKey(root.Leaves, key)
		if !found {
			return rootHash, false, nil
		}
		entries := append(append([]LeafEntry{}, root.Leaves[:idx]...), root.Leaves[idx+1:]...)
		if len(entries) == 0 {
			return nil, true, nil
		}
		h, err := writeNode(ctx, store, NewLeafNode(entries))
		if err != nil {
			return nil, false, err
		}
		return &h, true, nil
	}

	newRoot, changed, err := deleteFromInternal(ctx, store, cfg, root, key)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return rootHash, false, nil
	}

	// The root is exempt from the minFanout floor, but if it has
	// collapsed to a single child the height decreases: that child
	// becomes the new root.
	if len(newRoot.Internals) == 1 {
		h := newRoot.Internals[0].ChildHash
		return &h, true, nil
	}
	h, err := writeNode(ctx, store, newRoot)
	if err != nil {
		return nil, false, err
	}
	return &h, true, nil
}

func findLeafKey(entries []LeafEntry, key []byte) (int, bool) {
	idx := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].Key, key) >= 0
	})
	if idx < len(entries) && bytes.Equal(entries[idx].Key, key) {
		return idx, true
	}
	return 0, false
}

// deleteFromInternal removes key from the subtree under n (n must be
// internal), returning n's rewritten (but not yet written to store)
// replacement and whether key was actually found. The returned node may
// be underflowed relative to cfg.MinFanout; the caller (this function's
// own caller, one level up) is responsible for deciding whether that's
// tolerable (only the root is exempt).
func deleteFromInternal(ctx context.Context, store chunks.Store, cfg Config, n Node, key []byte) (Node, bool, error) {
	idx := childSlot(n.Internals, key)
	child, err := readNode(ctx, store, n.Internals[idx].ChildHash)
	if err != nil {
		return Node{}, false, err
	}

	var newChild Node
	var found bool
	if child.IsLeaf() {
		ci, ok := findLeafKey(child.Leaves, key)
		if !ok {
			return n, false, nil
		}
		entries := append(append([]LeafEntry{}, child.Leaves[:ci]...), child.Leaves[ci+1:]...)
		newChild = NewLeafNode(entries)
		found = true
	} else {
		var err error
		newChild, found, err = deleteFromInternal(ctx, store, cfg, child, key)
		if err != nil {
			return Node{}, false, err
		}
		if !found {
			return n, false, nil
		}
	}

	entries, err := resolveChildUnderflow(ctx, store, cfg, n.Internals, idx, newChild)
	if err != nil {
		return Node{}, false, err
	}
	return NewInternalNode(n.Level, entries), true, nil
}

// resolveChildUnderflow splices newChild (the rewritten replacement for
// entries[idx]'s subtree) back into entries, borrowing from or merging
// with an adjacent sibling (left first, then right) if newChild has
// fallen below cfg.MinFanout. If newChild is empty, its slot is dropped
// entirely; for a non-root subtree this can only happen when it was the
// sole remaining child, at which point the parent itself collapses.
func resolveChildUnderflow(ctx context.Context, store chunks.Store, cfg Config, entries []InternalEntry, idx int, newChild Node) ([]InternalEntry, error) {
	if newChild.Len() == 0 {
		out := make([]InternalEntry, 0, len(entries)-1)
		out = append(out, entries[:idx]...)
		out = append(out, entries[idx+1:]...)
		return out, nil
	}

	if newChild.Len() >= cfg.MinFanout {
		h, err := writeNode(ctx, store, newChild)
		if err != nil {
			return nil, err
		}
		out := append([]InternalEntry{}, entries...)
		out[idx] = InternalEntry{BoundaryKey: newChild.MaxKey(), ChildHash: h, NumItemsSubtree: newChild.NumItems()}
		return out, nil
	}

	// Underflowed: try the left sibling first, then the right.
	if idx > 0 {
		left, err := readNode(ctx, store, entries[idx-1].ChildHash)
		if err != nil {
			return nil, err
		}
		return rebalanceWithLeft(ctx, store, cfg, entries, idx, left, newChild)
	}
	if idx+1 < len(entries) {
		right, err := readNode(ctx, store, entries[idx+1].ChildHash)
		if err != nil {
			return nil, err
		}
		return rebalanceWithRight(ctx, store, cfg, entries, idx, right, newChild)
	}

	// No sibling at all: this is the only child at this level. Leave it
	// underflowed; the parent will observe this node's own reduced
	// count and may itself rebalance or (at the root) tolerate it.
	h, err := writeNode(ctx, store, newChild)
	if err != nil {
		return nil, err
	}
	out := append([]InternalEntry{}, entries...)
	out[idx] = InternalEntry{BoundaryKey: newChild.MaxKey(), ChildHash: h, NumItemsSubtree: newChild.NumItems()}
	return out, nil
}

func rebalanceWithLeft(ctx context.Context, store chunks.Store, cfg Config, entries []InternalEntry, idx int, left, child Node) ([]InternalEntry, error) {
	if left.Len() > cfg.MinFanout {
		newLeft, newChild := borrowLastToFront(left, child)
		return spliceTwo(ctx, store, entries, idx-1, idx, newLeft, newChild)
	}
	merged := mergeNodes(left, child)
	return spliceMerge(ctx, store, entries, idx-1, idx, merged)
}

func rebalanceWithRight(ctx context.Context, store chunks.Store, cfg Config, entries []InternalEntry, idx int, right, child Node) ([]InternalEntry, error) {
	if right.Len() > cfg.MinFanout {
		newChild, newRight := borrowFirstToEnd(right, child)
		return spliceTwo(ctx, store, entries, idx, idx+1, newChild, newRight)
	}
	merged := mergeNodes(child, right)
	return spliceMerge(ctx, store, entries, idx, idx+1, merged)
}

func borrowLastToFront(left, child Node) (Node, Node) {
	if left.IsLeaf() {
		n := len(left.Leaves)
		moved := left.Leaves[n-1]
		newLeft := NewLeafNode(append([]LeafEntry{}, left.Leaves[:n-1]...))
		newChildEntries := append([]LeafEntry{moved}, child.Leaves...)
		return newLeft, NewLeafNode(newChildEntries)
	}
	n := len(left.Internals)
	moved := left.Internals[n-1]
	newLeft := NewInternalNode(left.Level, append([]InternalEntry{}, left.Internals[:n-1]...))
	newChildEntries := append([]InternalEntry{moved}, child.Internals...)
	return newLeft, NewInternalNode(child.Level, newChildEntries)
}

func borrowFirstToEnd(right, child Node) (Node, Node) {
	if right.IsLeaf() {
		moved := right.Leaves[0]
		newRight := NewLeafNode(append([]LeafEntry{}, right.Leaves[1:]...))
		newChildEntries := append(append([]LeafEntry{}, child.Leaves...), moved)
		return NewLeafNode(newChildEntries), newRight
	}
	moved := right.Internals[0]
	newRight := NewInternalNode(right.Level, append([]InternalEntry{}, right.Internals[1:]...))
	newChildEntries := append(append([]InternalEntry{}, child.Internals...), moved)
	return NewInternalNode(child.Level, newChildEntries), newRight
}

func mergeNodes(left, right Node) Node {
	if left.IsLeaf() {
		return NewLeafNode(append(append([]LeafEntry{}, left.Leaves...), right.Leaves...))
	}
	return NewInternalNode(left.Level, append(append([]InternalEntry{}, left.Internals...), right.Internals...))
}

func spliceTwo(ctx context.Context, store chunks.Store, entries []InternalEntry, leftIdx, rightIdx int, newLeft, newRight Node) ([]InternalEntry, error) {
	lh, err := writeNode(ctx, store, newLeft)
	if err != nil {
		return nil, err
	}
	rh, err := writeNode(ctx, store, newRight)
	if err != nil {
		return nil, err
	}
	out := append([]InternalEntry{}, entries...)
	out[leftIdx] = InternalEntry{BoundaryKey: newLeft.MaxKey(), ChildHash: lh, NumItemsSubtree: newLeft.NumItems()}
	out[rightIdx] = InternalEntry{BoundaryKey: newRight.MaxKey(), ChildHash: rh, NumItemsSubtree: newRight.NumItems()}
	return out, nil
}

func spliceMerge(ctx context.Context, store chunks.Store, entries []InternalEntry, keepIdx, dropIdx int, merged Node) ([]InternalEntry, error) {
	h, err := writeNode(ctx, store, merged)
	if err != nil {
		return nil, err
	}
	out := make([]InternalEntry, 0, len(entries)-1)
	for i, e := range entries {
		if i == dropIdx {
			continue
		}
		if i == keepIdx {
			out = append(out, InternalEntry{BoundaryKey: merged.MaxKey(), ChildHash: h, NumItemsSubtree: merged.NumItems()})
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
