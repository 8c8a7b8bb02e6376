package prolly

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// Kind discriminates the two node shapes: leaf and internal.
type Kind uint8

const (
	// LeafKind nodes sit at level 0 and hold key/value entries directly.
	LeafKind Kind = 0
	// InternalKind nodes route to children one level below.
	InternalKind Kind = 1
)

// LeafEntry is one (key, value) pair.
type LeafEntry struct {
	Key   []byte
	Value ValueRepr
}

// InternalEntry routes to one child subtree: BoundaryKey is the largest
// key anywhere in that subtree, used both for routing and for diff's
// range-overlap test.
type InternalEntry struct {
	BoundaryKey     []byte
	ChildHash       hash.Hash
	NumItemsSubtree uint64
}

// Node is either a leaf or an internal node. Exactly one of Leaves /
// Internals is populated, selected by Kind.
type Node struct {
	Kind      Kind
	Level     uint16
	Leaves    []LeafEntry
	Internals []InternalEntry
}

// NewLeafNode builds a level-0 node. entries must already be sorted by
// Key; callers (the mutator) are responsible for ordering.
func NewLeafNode(entries []LeafEntry) Node {
	return Node{Kind: LeafKind, Level: 0, Leaves: entries}
}

// NewInternalNode builds a node at the given level (>=1) routing to the
// given children, already sorted by BoundaryKey.
func NewInternalNode(level uint16, entries []InternalEntry) Node {
	return Node{Kind: InternalKind, Level: level, Internals: entries}
}

// IsLeaf reports whether n is a level-0 node.
func (n Node) IsLeaf() bool { return n.Kind == LeafKind }

// Len returns the entry count (leaf entries or child entries).
func (n Node) Len() int {
	if n.IsLeaf() {
		return len(n.Leaves)
	}
	return len(n.Internals)
}

// Empty reports whether n carries no entries at all.
func (n Node) Empty() bool { return n.Len() == 0 }

// MaxKey returns the node's boundary key: the key of its last leaf entry,
// or the boundary key of its last child entry.
func (n Node) MaxKey() []byte {
	if n.IsLeaf() {
		if len(n.Leaves) == 0 {
			return nil
		}
		return n.Leaves[len(n.Leaves)-1].Key
	}
	if len(n.Internals) == 0 {
		return nil
	}
	return n.Internals[len(n.Internals)-1].BoundaryKey
}

// NumItems returns the count of leaf entries anywhere in the subtree
// rooted at n: O(1) for an internal node (sums the cached subtree
// counts), O(entries) for a leaf.
func (n Node) NumItems() uint64 {
	if n.IsLeaf() {
		return uint64(len(n.Leaves))
	}
	var total uint64
	for _, e := range n.Internals {
		total += e.NumItemsSubtree
	}
	return total
}

// Encode produces the canonical byte form of n. Two nodes with identical
// logical content always produce identical bytes, which is what lets
// diff prune by hash equality and what lets structural sharing work
// across independently-built trees.
func (n Node) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(n.Kind))

	if !n.IsLeaf() {
		writeU16(&buf, n.Level)
		writeU32(&buf, uint32(len(n.Internals)))
		for _, e := range n.Internals {
			writeU32(&buf, uint32(len(e.BoundaryKey)))
			buf.Write(e.BoundaryKey)
			buf.Write(e.ChildHash[:])
			writeU64(&buf, e.NumItemsSubtree)
		}
		return buf.Bytes()
	}

	writeU32(&buf, uint32(len(n.Leaves)))
	for _, e := range n.Leaves {
		writeU32(&buf, uint32(len(e.Key)))
		buf.Write(e.Key)
		if e.Value.IsInline() {
			buf.WriteByte(0)
			writeU32(&buf, uint32(len(e.Value.Inline)))
			buf.Write(e.Value.Inline)
		} else {
			buf.WriteByte(1)
			writeU32(&buf, uint32(len(e.Value.Chunks)))
			for _, d := range e.Value.Chunks {
				buf.Write(d.Hash[:])
				writeU64(&buf, d.Length)
			}
		}
	}
	return buf.Bytes()
}

// Hash is the BLAKE3-256 of n's canonical bytes: a node's identity (spec
// §3 "A node's canonical bytes hash to its identity").
func (n Node) Hash() hash.Hash {
	return hash.Of(n.Encode())
}

// DecodeNode parses the canonical byte form back into a Node.
func DecodeNode(b []byte) (Node, error) {
	r := &reader{buf: b}
	kindByte, err := r.byte_()
	if err != nil {
		return Node{}, err
	}
	kind := Kind(kindByte)

	if kind == InternalKind {
		level, err := r.u16()
		if err != nil {
			return Node{}, err
		}
		count, err := r.u32()
		if err != nil {
			return Node{}, err
		}
		entries := make([]InternalEntry, 0, count)
		for i := uint32(0); i < count; i++ {
			keyLen, err := r.u32()
			if err != nil {
				return Node{}, err
			}
			key, err := r.bytes(int(keyLen))
			if err != nil {
				return Node{}, err
			}
			var h hash.Hash
			hb, err := r.bytes(hash.ByteLen)
			if err != nil {
				return Node{}, err
			}
			copy(h[:], hb)
			n, err := r.u64()
			if err != nil {
				return Node{}, err
			}
			entries = append(entries, InternalEntry{BoundaryKey: key, ChildHash: h, NumItemsSubtree: n})
		}
		return NewInternalNode(level, entries), nil
	}

	if kind != LeafKind {
		return Node{}, errors.Errorf("prolly: unknown node kind byte %d", kindByte)
	}

	count, err := r.u32()
	if err != nil {
		return Node{}, err
	}
	entries := make([]LeafEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		keyLen, err := r.u32()
		if err != nil {
			return Node{}, err
		}
		key, err := r.bytes(int(keyLen))
		if err != nil {
			return Node{}, err
		}
		tag, err := r.byte_()
		if err != nil {
			return Node{}, err
		}
		var v ValueRepr
		if tag == 0 {
			n, err := r.u32()
			if err != nil {
				return Node{}, err
			}
			data, err := r.bytes(int(n))
			if err != nil {
				return Node{}, err
			}
			v = ValueRepr{Inline: data}
		} else {
			descCount, err := r.u32()
			if err != nil {
				return Node{}, err
			}
			descs := make([]Descriptor, 0, descCount)
			for j := uint32(0); j < descCount; j++ {
				hb, err := r.bytes(hash.ByteLen)
				if err != nil {
					return Node{}, err
				}
				var h hash.Hash
				copy(h[:], hb)
				l, err := r.u64()
				if err != nil {
					return Node{}, err
				}
				descs = append(descs, Descriptor{Hash: h, Length: l})
			}
			v = ValueRepr{Chunks: descs}
		}
		entries = append(entries, LeafEntry{Key: key, Value: v})
	}
	return NewLeafNode(entries), nil
}

// writeNode encodes n and writes it into store, returning its hash.
func writeNode(ctx context.Context, store chunks.Store, n Node) (hash.Hash, error) {
	b := n.Encode()
	c := chunks.NewChunk(b)
	if err := store.Put(ctx, c); err != nil {
		return hash.Hash{}, err
	}
	return c.Hash(), nil
}

// readNode fetches and decodes the node named by h.
func readNode(ctx context.Context, store chunks.Store, h hash.Hash) (Node, error) {
	c, err := store.Get(ctx, h)
	if err != nil {
		return Node{}, &ChunkNotFoundError{Hash: h}
	}
	return DecodeNode(c.Data())
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// reader is a small cursor over a byte slice used by DecodeNode; it keeps
// the decode path free of manual offset bookkeeping.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return errors.New("prolly: truncated node bytes")
	}
	return nil
}

func (r *reader) byte_() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+n])
	r.pos += n
	return b, nil
}
