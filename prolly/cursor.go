package prolly

import (
	"bytes"
	"context"
	"sort"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// frame is one (nodeHash, entryIndex) step of a Cursor's path: an
// explicit path stack in place of a generator/coroutine, so Advance is a
// pure state transition over plain data.
type frame struct {
	h     hash.Hash
	node  Node
	index int
}

// Cursor is an ordered iterator over (key, value) pairs, produced by
// newCursor or a seek to a specific key.
type Cursor struct {
	store  chunks.Store
	frames []frame
}

// newCursor builds a Cursor positioned at the first key >= seekKey (or at
// the very first key, when seekKey is nil).
func newCursor(ctx context.Context, store chunks.Store, rootHash *hash.Hash, seekKey []byte) (*Cursor, error) {
	c := &Cursor{store: store}
	if rootHash == nil {
		return c, nil
	}

	h := *rootHash
	for {
		n, err := readNode(ctx, store, h)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf() {
			idx := 0
			if seekKey != nil {
				idx = sort.Search(len(n.Leaves), func(i int) bool {
					return bytes.Compare(n.Leaves[i].Key, seekKey) >= 0
				})
			}
			c.frames = append(c.frames, frame{h: h, node: n, index: idx})
			if err := c.normalizeCtx(ctx); err != nil {
				return nil, err
			}
			return c, nil
		}

		idx := 0
		if seekKey != nil {
			idx = sort.Search(len(n.Internals), func(i int) bool {
				return bytes.Compare(n.Internals[i].BoundaryKey, seekKey) >= 0
			})
			if idx == len(n.Internals) {
				idx = len(n.Internals) - 1
			}
		}
		c.frames = append(c.frames, frame{h: h, node: n, index: idx})
		h = n.Internals[idx].ChildHash
	}
}

// Valid reports whether the cursor is currently positioned at an item.
func (c *Cursor) Valid() bool {
	return len(c.frames) > 0
}

func (c *Cursor) leaf() frame {
	return c.frames[len(c.frames)-1]
}

// Key returns the current item's key. Valid must be true.
func (c *Cursor) Key() []byte {
	f := c.leaf()
	return f.node.Leaves[f.index].Key
}

// ValueRepr returns the current item's raw value representation (inline
// or chunked); callers needing bytes should decode it via the tree's
// chunk store.
func (c *Cursor) ValueRepr() ValueRepr {
	f := c.leaf()
	return f.node.Leaves[f.index].Value
}

// Advance moves the cursor to the next item, incrementing the deepest
// frame's index and popping+re-descending as needed when a node's
// entries are exhausted.
func (c *Cursor) Advance(ctx context.Context) error {
	if !c.Valid() {
		return nil
	}
	top := len(c.frames) - 1
	c.frames[top].index++
	return c.normalizeCtx(ctx)
}

// normalize pops exhausted leaf frames without needing I/O. It stops at
// the first internal frame and does not move into a sibling subtree.
func (c *Cursor) normalize() {
	for len(c.frames) > 0 {
		top := len(c.frames) - 1
		f := c.frames[top]
		if f.node.IsLeaf() {
			if f.index < len(f.node.Leaves) {
				return
			}
			c.frames = c.frames[:top]
			continue
		}
		return
	}
}

// normalizeCtx pops exhausted frames (leaf or internal) and re-descends
// into the next sibling subtree, fetching nodes as required. This and its
// mirror retreatNormalizeCtx are the only places a Cursor fetches nodes
// after its initial descent; everything else is a pure transition over
// frames already in hand.
func (c *Cursor) normalizeCtx(ctx context.Context) error {
	for len(c.frames) > 0 {
		top := len(c.frames) - 1
		f := c.frames[top]
		if f.node.IsLeaf() {
			if f.index < len(f.node.Leaves) {
				return nil
			}
			c.frames = c.frames[:top]
			if len(c.frames) == 0 {
				return nil
			}
			c.frames[len(c.frames)-1].index++
			continue
		}

		if f.index >= len(f.node.Internals) {
			c.frames = c.frames[:top]
			if len(c.frames) == 0 {
				return nil
			}
			c.frames[len(c.frames)-1].index++
			continue
		}

		child, err := readNode(ctx, c.store, f.node.Internals[f.index].ChildHash)
		if err != nil {
			return err
		}
		c.frames = append(c.frames, frame{h: f.node.Internals[f.index].ChildHash, node: child, index: 0})
	}
	return nil
}

// newReverseCursor builds a Cursor positioned at the last key <= boundKey
// (or at the very last key, when boundKey is nil), for descending scans.
func newReverseCursor(ctx context.Context, store chunks.Store, rootHash *hash.Hash, boundKey []byte) (*Cursor, error) {
	c := &Cursor{store: store}
	if rootHash == nil {
		return c, nil
	}

	h := *rootHash
	for {
		n, err := readNode(ctx, store, h)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf() {
			idx := len(n.Leaves) - 1
			if boundKey != nil {
				idx = sort.Search(len(n.Leaves), func(i int) bool {
					return bytes.Compare(n.Leaves[i].Key, boundKey) > 0
				}) - 1
			}
			c.frames = append(c.frames, frame{h: h, node: n, index: idx})
			if err := c.retreatNormalizeCtx(ctx); err != nil {
				return nil, err
			}
			return c, nil
		}

		idx := len(n.Internals) - 1
		if boundKey != nil {
			idx = sort.Search(len(n.Internals), func(i int) bool {
				return bytes.Compare(n.Internals[i].BoundaryKey, boundKey) > 0
			})
			if idx == len(n.Internals) {
				idx = len(n.Internals) - 1
			}
		}
		c.frames = append(c.frames, frame{h: h, node: n, index: idx})
		h = n.Internals[idx].ChildHash
	}
}

func (c *Cursor) retreatNormalizeNoIO() {
	for len(c.frames) > 0 {
		top := len(c.frames) - 1
		if c.frames[top].index >= 0 {
			return
		}
		c.frames = c.frames[:top]
	}
}

// Retreat moves the cursor to the previous item in key order, the mirror
// image of Advance.
func (c *Cursor) Retreat(ctx context.Context) error {
	if !c.Valid() {
		return nil
	}
	top := len(c.frames) - 1
	c.frames[top].index--
	return c.retreatNormalizeCtx(ctx)
}

func (c *Cursor) retreatNormalizeCtx(ctx context.Context) error {
	for len(c.frames) > 0 {
		top := len(c.frames) - 1
		f := c.frames[top]
		if f.node.IsLeaf() {
			if f.index >= 0 {
				return nil
			}
			c.frames = c.frames[:top]
			if len(c.frames) == 0 {
				return nil
			}
			c.frames[len(c.frames)-1].index--
			continue
		}

		if f.index < 0 {
			c.frames = c.frames[:top]
			if len(c.frames) == 0 {
				return nil
			}
			c.frames[len(c.frames)-1].index--
			continue
		}

		child, err := readNode(ctx, c.store, f.node.Internals[f.index].ChildHash)
		if err != nil {
			return err
		}
		lastIdx := child.Len() - 1
		c.frames = append(c.frames, frame{h: f.node.Internals[f.index].ChildHash, node: child, index: lastIdx})
	}
	return nil
}
