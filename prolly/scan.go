package prolly

import (
	"bytes"
	"context"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// ScanOptions configures a paginated bounded scan.
type ScanOptions struct {
	StartBound     []byte
	EndBound       []byte
	StartInclusive bool
	EndInclusive   bool
	Reverse        bool
	Offset         int
	Limit          int // negative means unbounded
}

// DefaultScanOptions returns the conventional defaults: start inclusive,
// end exclusive, forward, no offset, no limit.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{StartInclusive: true, EndInclusive: false, Limit: -1}
}

// Item is one (key, value) pair returned by a scan or drained from a
// cursor.
type Item struct {
	Key   []byte
	Value []byte
}

// ScanPage is the result of scanItems.
type ScanPage struct {
	Items              []Item
	HasNextPage        bool
	HasPreviousPage    bool
	NextPageCursor     []byte
	PreviousPageCursor []byte
}

func scanItems(ctx context.Context, store chunks.Store, rootHash *hash.Hash, opts ScanOptions) (ScanPage, error) {
	if opts.Reverse {
		return scanReverse(ctx, store, rootHash, opts)
	}
	return scanForward(ctx, store, rootHash, opts)
}

func scanForward(ctx context.Context, store chunks.Store, rootHash *hash.Hash, opts ScanOptions) (ScanPage, error) {
	cur, err := newCursor(ctx, store, rootHash, opts.StartBound)
	if err != nil {
		return ScanPage{}, err
	}
	if opts.StartBound != nil && !opts.StartInclusive {
		for cur.Valid() && bytes.Equal(cur.Key(), opts.StartBound) {
			if err := cur.Advance(ctx); err != nil {
				return ScanPage{}, err
			}
		}
	}

	inBounds := func(key []byte) bool {
		if opts.EndBound == nil {
			return true
		}
		cmp := bytes.Compare(key, opts.EndBound)
		if opts.EndInclusive {
			return cmp <= 0
		}
		return cmp < 0
	}

	for i := 0; i < opts.Offset && cur.Valid() && inBounds(cur.Key()); i++ {
		if err := cur.Advance(ctx); err != nil {
			return ScanPage{}, err
		}
	}

	var items []Item
	for cur.Valid() && inBounds(cur.Key()) {
		if opts.Limit >= 0 && len(items) >= opts.Limit {
			break
		}
		val, err := decodeValue(ctx, cur.ValueRepr(), store)
		if err != nil {
			return ScanPage{}, err
		}
		items = append(items, Item{Key: cloneBytes(cur.Key()), Value: val})
		if err := cur.Advance(ctx); err != nil {
			return ScanPage{}, err
		}
	}

	page := ScanPage{Items: items}
	if cur.Valid() && inBounds(cur.Key()) {
		page.HasNextPage = true
		page.NextPageCursor = cloneBytes(cur.Key())
	}
	if opts.Offset > 0 || opts.StartBound != nil {
		page.HasPreviousPage = true
		if len(items) > 0 {
			page.PreviousPageCursor = cloneBytes(items[0].Key)
		}
	}
	return page, nil
}

func scanReverse(ctx context.Context, store chunks.Store, rootHash *hash.Hash, opts ScanOptions) (ScanPage, error) {
	cur, err := newReverseCursor(ctx, store, rootHash, opts.EndBound)
	if err != nil {
		return ScanPage{}, err
	}
	if opts.EndBound != nil && !opts.EndInclusive {
		for cur.Valid() && bytes.Equal(cur.Key(), opts.EndBound) {
			if err := cur.Retreat(ctx); err != nil {
				return ScanPage{}, err
			}
		}
	}

	inBounds := func(key []byte) bool {
		if opts.StartBound == nil {
			return true
		}
		cmp := bytes.Compare(key, opts.StartBound)
		if opts.StartInclusive {
			return cmp >= 0
		}
		return cmp > 0
	}

	for i := 0; i < opts.Offset && cur.Valid() && inBounds(cur.Key()); i++ {
		if err := cur.Retreat(ctx); err != nil {
			return ScanPage{}, err
		}
	}

	var items []Item
	for cur.Valid() && inBounds(cur.Key()) {
		if opts.Limit >= 0 && len(items) >= opts.Limit {
			break
		}
		val, err := decodeValue(ctx, cur.ValueRepr(), store)
		if err != nil {
			return ScanPage{}, err
		}
		items = append(items, Item{Key: cloneBytes(cur.Key()), Value: val})
		if err := cur.Retreat(ctx); err != nil {
			return ScanPage{}, err
		}
	}

	page := ScanPage{Items: items}
	if cur.Valid() && inBounds(cur.Key()) {
		page.HasNextPage = true
		page.NextPageCursor = cloneBytes(cur.Key())
	}
	if opts.Offset > 0 || opts.EndBound != nil {
		page.HasPreviousPage = true
		if len(items) > 0 {
			page.PreviousPageCursor = cloneBytes(items[0].Key)
		}
	}
	return page, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// countAllItems returns the tree's total item count: O(1) when the root
// is internal (sums cached subtree counts), O(leaf size) for a
// single-leaf tree.
func countAllItems(ctx context.Context, store chunks.Store, rootHash *hash.Hash) (uint64, error) {
	if rootHash == nil {
		return 0, nil
	}
	n, err := readNode(ctx, store, *rootHash)
	if err != nil {
		return 0, err
	}
	return n.NumItems(), nil
}
