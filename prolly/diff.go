package prolly

import (
	"bytes"
	"context"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// DiffEntry describes one key's change between two roots. LeftValue is
// nil for an addition in B; RightValue is nil for a deletion from A;
// both present with differing bytes means a modification.
type DiffEntry struct {
	Key        []byte
	LeftValue  []byte
	RightValue []byte
}

func addition(key, right []byte) DiffEntry  { return DiffEntry{Key: key, RightValue: right} }
func deletion(key, left []byte) DiffEntry   { return DiffEntry{Key: key, LeftValue: left} }
func modified(key, l, r []byte) DiffEntry   { return DiffEntry{Key: key, LeftValue: l, RightValue: r} }

// diffRoots is a parallel descent that prunes equal subtrees by hash and
// otherwise walks both sides in ascending key order, so the emitted list
// is already sorted and needs no final sort pass.
func diffRoots(ctx context.Context, store chunks.Store, leftRoot, rightRoot *hash.Hash) ([]DiffEntry, error) {
	var out []DiffEntry
	if err := diffNode(ctx, store, leftRoot, rightRoot, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func diffNode(ctx context.Context, store chunks.Store, leftH, rightH *hash.Hash, out *[]DiffEntry) error {
	if leftH == nil && rightH == nil {
		return nil
	}
	if leftH != nil && rightH != nil && *leftH == *rightH {
		return nil // structural prune: identical subtree
	}
	if leftH == nil {
		return walkAllLeaves(ctx, store, *rightH, true, out)
	}
	if rightH == nil {
		return walkAllLeaves(ctx, store, *leftH, false, out)
	}

	left, err := readNode(ctx, store, *leftH)
	if err != nil {
		return err
	}
	right, err := readNode(ctx, store, *rightH)
	if err != nil {
		return err
	}

	if left.Level > right.Level {
		for i := range left.Internals {
			if err := diffNode(ctx, store, &left.Internals[i].ChildHash, rightH, out); err != nil {
				return err
			}
		}
		return nil
	}
	if right.Level > left.Level {
		for j := range right.Internals {
			if err := diffNode(ctx, store, leftH, &right.Internals[j].ChildHash, out); err != nil {
				return err
			}
		}
		return nil
	}

	if left.IsLeaf() {
		return diffLeaves(ctx, store, left, right, out)
	}
	return diffInternalSameLevel(ctx, store, left, right, out)
}

// diffInternalSameLevel merges two same-level internal nodes' entries by
// boundary key: it walks entries in parallel, recursing into child pairs
// whose boundary ranges overlap. Because the two nodes' entry lists
// partition the same overall key range (an invariant maintained by
// construction at every recursive call), this two-pointer merge visits
// every overlapping pair exactly once without needing to track explicit
// lower bounds.
func diffInternalSameLevel(ctx context.Context, store chunks.Store, left, right Node, out *[]DiffEntry) error {
	i, j := 0, 0
	for i < len(left.Internals) && j < len(right.Internals) {
		l := left.Internals[i]
		r := right.Internals[j]
		switch bytes.Compare(l.BoundaryKey, r.BoundaryKey) {
		case 0:
			if l.ChildHash != r.ChildHash {
				if err := diffNode(ctx, store, &l.ChildHash, &r.ChildHash, out); err != nil {
					return err
				}
			}
			i++
			j++
		case -1:
			if err := diffNode(ctx, store, &l.ChildHash, &r.ChildHash, out); err != nil {
				return err
			}
			i++
		default:
			if err := diffNode(ctx, store, &l.ChildHash, &r.ChildHash, out); err != nil {
				return err
			}
			j++
		}
	}
	for ; i < len(left.Internals); i++ {
		if err := diffNode(ctx, store, &left.Internals[i].ChildHash, nil, out); err != nil {
			return err
		}
	}
	for ; j < len(right.Internals); j++ {
		if err := diffNode(ctx, store, nil, &right.Internals[j].ChildHash, out); err != nil {
			return err
		}
	}
	return nil
}

func diffLeaves(ctx context.Context, store chunks.Store, left, right Node, out *[]DiffEntry) error {
	i, j := 0, 0
	for i < len(left.Leaves) && j < len(right.Leaves) {
		lk, rk := left.Leaves[i].Key, right.Leaves[j].Key
		switch bytes.Compare(lk, rk) {
		case -1:
			lv, err := decodeValue(ctx, left.Leaves[i].Value, store)
			if err != nil {
				return err
			}
			*out = append(*out, deletion(lk, lv))
			i++
		case 1:
			rv, err := decodeValue(ctx, right.Leaves[j].Value, store)
			if err != nil {
				return err
			}
			*out = append(*out, addition(rk, rv))
			j++
		default:
			lv, err := decodeValue(ctx, left.Leaves[i].Value, store)
			if err != nil {
				return err
			}
			rv, err := decodeValue(ctx, right.Leaves[j].Value, store)
			if err != nil {
				return err
			}
			if !bytes.Equal(lv, rv) {
				*out = append(*out, modified(lk, lv, rv))
			}
			i++
			j++
		}
	}
	for ; i < len(left.Leaves); i++ {
		lv, err := decodeValue(ctx, left.Leaves[i].Value, store)
		if err != nil {
			return err
		}
		*out = append(*out, deletion(left.Leaves[i].Key, lv))
	}
	for ; j < len(right.Leaves); j++ {
		rv, err := decodeValue(ctx, right.Leaves[j].Value, store)
		if err != nil {
			return err
		}
		*out = append(*out, addition(right.Leaves[j].Key, rv))
	}
	return nil
}

func walkAllLeaves(ctx context.Context, store chunks.Store, h hash.Hash, isAddition bool, out *[]DiffEntry) error {
	n, err := readNode(ctx, store, h)
	if err != nil {
		return err
	}
	if n.IsLeaf() {
		for _, e := range n.Leaves {
			v, err := decodeValue(ctx, e.Value, store)
			if err != nil {
				return err
			}
			if isAddition {
				*out = append(*out, addition(e.Key, v))
			} else {
				*out = append(*out, deletion(e.Key, v))
			}
		}
		return nil
	}
	for _, e := range n.Internals {
		if err := walkAllLeaves(ctx, store, e.ChildHash, isAddition, out); err != nil {
			return err
		}
	}
	return nil
}
