// Package prolly implements a content-addressed, history-independent
// B-tree: nodes split and merge at content-defined boundaries so two
// trees holding the same logical data converge to the same shape and
// the same chunk hashes, regardless of how each was built.
package prolly

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// Tree is the engine handle: a chunk store, a current root, a config, and
// the ambient logging/listener machinery wired around them. All state is
// protected by one logical mutex (mu) — the single-threaded cooperative
// model: a mutation holds it for its entire duration, and the *Sync
// variants fail fast with BusyError rather than blocking.
type Tree struct {
	mu        sync.Mutex
	store     chunks.Store
	cfg       Config
	rootHash  *hash.Hash
	log       *zap.Logger
	listeners *listenerRegistry
}

// New creates an empty Tree over store with cfg. A nil logger defaults to
// zap.NewNop().
func New(store chunks.Store, cfg Config, log *zap.Logger) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tree{store: store, cfg: cfg, log: log, listeners: newListenerRegistry(log)}, nil
}

// Load rebuilds a Tree from a previously saved container blob.
func Load(ctx context.Context, store chunks.Store, data []byte, log *zap.Logger) (*Tree, string, error) {
	cfg, root, desc, err := loadContainer(ctx, store, data)
	if err != nil {
		return nil, "", err
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tree{store: store, cfg: cfg, rootHash: root, log: log, listeners: newListenerRegistry(log)}
	return t, desc, nil
}

// NewFromRoot builds a Tree directly from a root hash plus a caller-
// supplied seed map of the chunks it depends on (as produced by a prior
// ExportChunks call), without going through the container byte format.
// Every chunk in seed is put into store, keyed by the hash the bytes
// actually hash to (a mismatch is a CorruptContainerError); any ancestor
// the root needs that isn't present in store afterward surfaces as
// ChunkNotFoundError from the reachability check below.
func NewFromRoot(ctx context.Context, store chunks.Store, cfg Config, root hash.Hash, seed map[hash.Hash][]byte, log *zap.Logger) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for h, body := range seed {
		c := chunks.NewChunk(body)
		if c.Hash() != h {
			return nil, &CorruptContainerError{Reason: "seed chunk hash mismatch"}
		}
		if err := store.Put(ctx, c); err != nil {
			return nil, err
		}
	}

	n, err := readNode(ctx, store, root)
	if err != nil {
		return nil, err
	}
	if n.Hash() != root {
		return nil, &CorruptContainerError{Reason: "root node hash mismatch"}
	}
	live := hash.NewSet()
	if err := walkReachableNoIO(ctx, store, root, live); err != nil {
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}
	rh := root
	return &Tree{store: store, cfg: cfg, rootHash: &rh, log: log, listeners: newListenerRegistry(log)}, nil
}

// GetTreeConfig returns the Tree's Config.
func (t *Tree) GetTreeConfig() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// GetRootHash returns the current root hash, or nil for an empty tree.
func (t *Tree) GetRootHash() *hash.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootHash
}

// Get looks up key, blocking for the duration of the lookup if another
// mutation currently holds the lock.
func (t *Tree) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(ctx, key)
}

func (t *Tree) getLocked(ctx context.Context, key []byte) ([]byte, bool, error) {
	if t.rootHash == nil {
		return nil, false, nil
	}
	cur, err := newCursor(ctx, t.store, t.rootHash, key)
	if err != nil {
		return nil, false, err
	}
	if !cur.Valid() || !bytes.Equal(cur.Key(), key) {
		return nil, false, nil
	}
	v, err := decodeValue(ctx, cur.ValueRepr(), t.store)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// GetSync is Get's fail-fast counterpart: if another mutation currently
// holds the lock it returns BusyError immediately instead of blocking.
func (t *Tree) GetSync(ctx context.Context, key []byte) ([]byte, bool, error) {
	if !t.mu.TryLock() {
		return nil, false, &BusyError{}
	}
	defer t.mu.Unlock()
	return t.getLocked(ctx, key)
}

// Insert writes key->value, creating or updating as needed, and fires an
// insert Event if the root hash changed. The listener runs after mu is
// released, so a listener that calls back into the tree never deadlocks
// against its own mutation.
func (t *Tree) Insert(ctx context.Context, key, value []byte) error {
	t.mu.Lock()
	ev, err := t.insertLocked(ctx, key, value)
	t.mu.Unlock()
	if ev != nil {
		t.listeners.fire(*ev)
	}
	return err
}

func (t *Tree) insertLocked(ctx context.Context, key, value []byte) (*Event, error) {
	old := t.rootHash
	repr, err := encodeValue(ctx, value, t.cfg, t.store)
	if err != nil {
		return nil, errors.Wrap(err, "prolly: insert: encode value")
	}
	newRoot, err := insertOne(ctx, t.store, t.cfg, t.rootHash, key, repr)
	if err != nil {
		return nil, errors.Wrap(err, "prolly: insert")
	}
	t.rootHash = &newRoot
	return changedEvent(EventInsert, old, t.rootHash), nil
}

// InsertSync is Insert's fail-fast counterpart.
func (t *Tree) InsertSync(ctx context.Context, key, value []byte) error {
	if !t.mu.TryLock() {
		return &BusyError{}
	}
	ev, err := t.insertLocked(ctx, key, value)
	t.mu.Unlock()
	if ev != nil {
		t.listeners.fire(*ev)
	}
	return err
}

// BatchItem is one (key, value) pair for InsertBatch.
type BatchItem struct {
	Key   []byte
	Value []byte
}

// InsertBatch applies items as a single logical mutation, equivalent to
// applying each insert in ascending-key, last-write-wins order (spec
// §4.4 Insert-batch). A malformed entry (nil key) leaves the tree
// completely unchanged: no partial effect. As with Insert, the listener
// runs after mu is released.
func (t *Tree) InsertBatch(ctx context.Context, items []BatchItem) error {
	t.mu.Lock()
	ev, err := t.insertBatchLocked(ctx, items)
	t.mu.Unlock()
	if ev != nil {
		t.listeners.fire(*ev)
	}
	return err
}

func (t *Tree) insertBatchLocked(ctx context.Context, items []BatchItem) (*Event, error) {
	for i, it := range items {
		if it.Key == nil {
			return nil, &InvalidBatchError{Index: i, Reason: "nil key"}
		}
	}

	sorted := make([]BatchItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0 })
	deduped := sorted[:0]
	for i, it := range sorted {
		if i > 0 && bytes.Equal(it.Key, sorted[i-1].Key) {
			deduped[len(deduped)-1] = it
			continue
		}
		deduped = append(deduped, it)
	}
	if len(deduped) == 0 {
		return nil, nil
	}

	old := t.rootHash
	encoded := make([]struct {
		Key   []byte
		Value ValueRepr
	}, len(deduped))
	for i, it := range deduped {
		repr, err := encodeValue(ctx, it.Value, t.cfg, t.store)
		if err != nil {
			return nil, errors.Wrap(err, "prolly: insertBatch: encode value")
		}
		encoded[i] = struct {
			Key   []byte
			Value ValueRepr
		}{Key: it.Key, Value: repr}
	}

	newRoot, err := insertBatchSorted(ctx, t.store, t.cfg, t.rootHash, encoded)
	if err != nil {
		return nil, errors.Wrap(err, "prolly: insertBatch")
	}
	t.rootHash = &newRoot
	return changedEvent(EventInsertBatch, old, t.rootHash), nil
}

// Delete removes key, returning whether it was present. A delete of an
// absent key is a no-op: no event fires. As with Insert, the listener
// runs after mu is released.
func (t *Tree) Delete(ctx context.Context, key []byte) (bool, error) {
	t.mu.Lock()
	found, ev, err := t.deleteLocked(ctx, key)
	t.mu.Unlock()
	if ev != nil {
		t.listeners.fire(*ev)
	}
	return found, err
}

func (t *Tree) deleteLocked(ctx context.Context, key []byte) (bool, *Event, error) {
	old := t.rootHash
	newRoot, found, err := deleteOne(ctx, t.store, t.cfg, t.rootHash, key)
	if err != nil {
		return false, nil, errors.Wrap(err, "prolly: delete")
	}
	if !found {
		return false, nil, nil
	}
	t.rootHash = newRoot
	return true, changedEvent(EventDelete, old, t.rootHash), nil
}

// DeleteSync is Delete's fail-fast counterpart.
func (t *Tree) DeleteSync(ctx context.Context, key []byte) (bool, error) {
	if !t.mu.TryLock() {
		return false, &BusyError{}
	}
	found, ev, err := t.deleteLocked(ctx, key)
	t.mu.Unlock()
	if ev != nil {
		t.listeners.fire(*ev)
	}
	return found, err
}

// Checkout replaces the current root wholesale (e.g. to switch to a
// previously diffed or saved version), firing a checkout Event if it
// actually changes the root. newRoot may be nil for an empty tree. As
// with Insert, the listener runs after mu is released.
func (t *Tree) Checkout(ctx context.Context, newRoot *hash.Hash) error {
	t.mu.Lock()

	if newRoot != nil {
		if _, err := readNode(ctx, t.store, *newRoot); err != nil {
			t.mu.Unlock()
			return err
		}
	}
	old := t.rootHash
	t.rootHash = newRoot
	ev := changedEvent(EventCheckout, old, t.rootHash)
	t.mu.Unlock()
	if ev != nil {
		t.listeners.fire(*ev)
	}
	return nil
}

// changedEvent reports whether old and newH differ and, if so, builds
// the Event describing the transition. Callers fire it only once mu has
// been released.
func changedEvent(typ EventType, old, newH *hash.Hash) *Event {
	changed := (old == nil) != (newH == nil)
	if !changed && old != nil && newH != nil {
		changed = *old != *newH
	}
	if !changed {
		return nil
	}
	return &Event{Type: typ, OldRootHash: old, NewRootHash: newH}
}

// OnChange registers a Listener, returning a token for OffChange.
func (t *Tree) OnChange(fn Listener) int {
	return t.listeners.onChange(fn)
}

// OffChange removes a previously registered listener.
func (t *Tree) OffChange(token int) {
	t.listeners.offChange(token)
}

// CountAllItems returns the total number of keys in the tree, O(1) for
// any non-trivial tree since internal entries cache their subtree counts.
func (t *Tree) CountAllItems(ctx context.Context) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countAllItems(ctx, t.store, t.rootHash)
}

// Scan runs a paginated bounded scan over the tree's current root.
func (t *Tree) Scan(ctx context.Context, opts ScanOptions) (ScanPage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return scanItems(ctx, t.store, t.rootHash, opts)
}

// CursorStart returns a Cursor positioned at the first key.
func (t *Tree) CursorStart(ctx context.Context) (*Cursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return newCursor(ctx, t.store, t.rootHash, nil)
}

// Seek returns a Cursor positioned at the first key >= key.
func (t *Tree) Seek(ctx context.Context, key []byte) (*Cursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return newCursor(ctx, t.store, t.rootHash, key)
}

// Hierarchy walks the tree's internal structure for debugging/visualization.
func (t *Tree) Hierarchy(ctx context.Context, opts HierarchyOptions) (HierarchyPage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return hierarchyScan(ctx, t.store, t.rootHash, opts)
}

// DiffRoots computes the structural diff between two arbitrary roots
// held in this tree's store (not necessarily its current root — callers
// can diff any two hashes obtained from prior GetRootHash calls).
func (t *Tree) DiffRoots(ctx context.Context, left, right *hash.Hash) ([]DiffEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return diffRoots(ctx, t.store, left, right)
}

// TriggerGc reclaims every chunk unreachable from liveRoots plus the
// tree's own current root (so GC can never orphan the live tree).
func (t *Tree) TriggerGc(ctx context.Context, liveRoots []hash.Hash) (GcStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	roots := liveRoots
	if t.rootHash != nil {
		roots = append(append([]hash.Hash{}, liveRoots...), *t.rootHash)
	}
	return triggerGc(ctx, t.store, roots)
}

// Save serializes the tree's current root and all reachable chunks into
// a self-describing container blob.
func (t *Tree) Save(ctx context.Context, description string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return saveContainer(ctx, t.store, t.cfg, t.rootHash, description)
}

// ExportChunks returns every chunk reachable from the current root (the
// same set Save writes and Gc would keep) as a hash->bytes map, suitable
// as the seed argument to NewFromRoot: NewFromRoot(store', cfg,
// t.GetRootHash(), t.ExportChunks(), log) reconstructs a tree with the
// same root hash and the same contents.
func (t *Tree) ExportChunks(ctx context.Context) (map[hash.Hash][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return exportReachableChunks(ctx, t.store, t.rootHash)
}
