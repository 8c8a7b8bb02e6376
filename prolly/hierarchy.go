package prolly

import (
	"context"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// HierarchyItemKind discriminates the three item shapes hierarchyScan
// emits.
type HierarchyItemKind uint8

const (
	HierNode HierarchyItemKind = iota
	HierInternalEntry
	HierLeafEntry
)

// HierarchyItem is one emitted step of a pre-order walk of the tree's
// internal structure, carrying enough context (parent, index, size) for
// a debugging/visualization UI to reconstruct the shape without a second
// pass. For debugging and visualization only.
type HierarchyItem struct {
	Kind       HierarchyItemKind
	Hash       hash.Hash // the node's own hash (Node), or the child's hash (InternalEntry)
	Level      uint16
	ParentHash hash.Hash // zero value at the root
	Index      int       // position within the parent
	Size       uint64    // subtree item count (Node/InternalEntry) or key length plus value length in bytes (LeafEntry)
	Key        []byte    // boundary key (InternalEntry) or leaf key (LeafEntry); nil for Node
}

// HierarchyOptions bounds a hierarchyScan call.
type HierarchyOptions struct {
	MaxDepth  int // 0 means unlimited
	Limit     int // negative means unlimited
	PageToken int // resume offset from a prior HierarchyPage.NextPageToken
}

// HierarchyPage is one page of a hierarchyScan.
type HierarchyPage struct {
	Items         []HierarchyItem
	NextPageToken *int
}

func hierarchyScan(ctx context.Context, store chunks.Store, rootHash *hash.Hash, opts HierarchyOptions) (HierarchyPage, error) {
	var all []HierarchyItem
	if rootHash != nil {
		if err := walkHierarchy(ctx, store, *rootHash, hash.Hash{}, 0, 0, opts.MaxDepth, &all); err != nil {
			return HierarchyPage{}, err
		}
	}

	start := opts.PageToken
	if start < 0 {
		start = 0
	}
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	limited := false
	if opts.Limit >= 0 && start+opts.Limit < end {
		end = start + opts.Limit
		limited = true
	}

	page := HierarchyPage{Items: all[start:end]}
	if limited {
		next := end
		page.NextPageToken = &next
	}
	return page, nil
}

func walkHierarchy(ctx context.Context, store chunks.Store, h, parent hash.Hash, idx, depth, maxDepth int, out *[]HierarchyItem) error {
	n, err := readNode(ctx, store, h)
	if err != nil {
		return err
	}
	*out = append(*out, HierarchyItem{Kind: HierNode, Hash: h, Level: n.Level, ParentHash: parent, Index: idx, Size: n.NumItems()})

	if n.IsLeaf() {
		for i, e := range n.Leaves {
			*out = append(*out, HierarchyItem{
				Kind: HierLeafEntry, Hash: h, Level: n.Level, ParentHash: h, Index: i,
				Size: uint64(len(e.Key)) + valueRepSize(e.Value), Key: e.Key,
			})
		}
		return nil
	}

	for i, e := range n.Internals {
		*out = append(*out, HierarchyItem{
			Kind: HierInternalEntry, Hash: e.ChildHash, Level: n.Level - 1, ParentHash: h, Index: i,
			Size: e.NumItemsSubtree, Key: e.BoundaryKey,
		})
		if maxDepth <= 0 || depth+1 < maxDepth {
			if err := walkHierarchy(ctx, store, e.ChildHash, h, i, depth+1, maxDepth, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func valueRepSize(v ValueRepr) uint64 {
	if v.IsInline() {
		return uint64(len(v.Inline))
	}
	var total uint64
	for _, d := range v.Chunks {
		total += d.Length
	}
	return total
}
