// Package chunks implements the keyed hash->bytes mapping that backs both
// tree nodes and CDC value chunks: a Store interface, a Chunk value
// type, and an in-memory implementation, threaded with context.Context
// so a host backed by asynchronous persistence can suspend at I/O
// boundaries.
package chunks

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// ErrChunkNotFound is returned (wrapped with the missing hash) whenever a
// referenced chunk is absent from the store.
var ErrChunkNotFound = errors.New("chunk not found")

// NotFoundError carries the specific hash that could not be located, so
// callers can inspect it with errors.As.
type NotFoundError struct {
	Hash hash.Hash
}

func (e *NotFoundError) Error() string {
	return "chunk not found: " + e.Hash.String()
}

func (e *NotFoundError) Unwrap() error {
	return ErrChunkNotFound
}

func notFound(h hash.Hash) error {
	return errors.WithStack(&NotFoundError{Hash: h})
}

// Chunk is an immutable, content-addressed byte blob.
type Chunk struct {
	h    hash.Hash
	data []byte
}

// NewChunk computes data's address and wraps it as a Chunk.
func NewChunk(data []byte) Chunk {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Chunk{h: hash.Of(cp), data: cp}
}

// Hash returns the chunk's content address.
func (c Chunk) Hash() hash.Hash { return c.h }

// Data returns the chunk's bytes. Callers must not mutate the result.
func (c Chunk) Data() []byte { return c.data }

// IsEmpty reports whether c is the zero Chunk (no data, no identity).
func (c Chunk) IsEmpty() bool { return len(c.data) == 0 && c.h.IsEmpty() }

// Store is the keyed mapping from hash to bytes. Every method is
// synchronous with respect to a single mutator; the engine's external
// lock serializes concurrent callers.
type Store interface {
	Get(ctx context.Context, h hash.Hash) (Chunk, error)
	Put(ctx context.Context, c Chunk) error
	Has(ctx context.Context, h hash.Hash) (bool, error)
	HasMany(ctx context.Context, hs hash.Set) (hash.Set, error)
	Delete(ctx context.Context, h hash.Hash) error
	Keys(ctx context.Context) (<-chan hash.Hash, error)
	Size(ctx context.Context) (uint64, error)
}

// MemoryStore is an in-memory Store. It never persists anything to disk;
// durability of the chunk store is a host concern.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[hash.Hash][]byte
}

// NewMemoryStore returns an empty in-memory chunk store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[hash.Hash][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, h hash.Hash) (Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[h]
	if !ok {
		return Chunk{}, notFound(h)
	}
	return Chunk{h: h, data: b}, nil
}

// Put writes c into the store. Writes are idempotent: puts of a hash
// already present are no-ops (bytes are assumed identical, since the hash
// names them).
func (s *MemoryStore) Put(_ context.Context, c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[c.h]; ok {
		return nil
	}
	s.data[c.h] = c.data
	return nil
}

func (s *MemoryStore) Has(_ context.Context, h hash.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[h]
	return ok, nil
}

func (s *MemoryStore) HasMany(_ context.Context, hs hash.Set) (hash.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(hash.Set, len(hs))
	for h := range hs {
		if _, ok := s.data[h]; ok {
			out.Insert(h)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, h hash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, h)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context) (<-chan hash.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(chan hash.Hash, len(s.data))
	for h := range s.data {
		out <- h
	}
	close(out)
	return out, nil
}

func (s *MemoryStore) Size(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.data)), nil
}
