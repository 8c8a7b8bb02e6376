package prolly

import (
	"fmt"

	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// The error kinds below are stable across any binding built on this
// engine. Each is a distinct type so callers can errors.As against the
// one they care about; chunks.NotFoundError is re-surfaced as
// ChunkNotFoundError at this layer so the engine's error kinds form a
// closed, documented set independent of the chunk store implementation.

// ChunkNotFoundError indicates a referenced chunk is absent from the
// store, surfaced from reads, loads, checkouts, diff, and GC traversal.
type ChunkNotFoundError struct {
	Hash hash.Hash
}

func (e *ChunkNotFoundError) Error() string {
	return "prolly: chunk not found: " + e.Hash.String()
}

// CorruptContainerError indicates a save/load container failed magic,
// version, CRC, or root-hash validation.
type CorruptContainerError struct {
	Reason string
}

func (e *CorruptContainerError) Error() string {
	return "prolly: corrupt container: " + e.Reason
}

// InvalidConfigError indicates a Config violated one of its required
// inequalities.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("prolly: invalid config field %q: %s", e.Field, e.Reason)
}

// InvalidBatchError indicates a malformed entry within an insertBatch
// call; the batch has no partial effect when this occurs.
type InvalidBatchError struct {
	Index  int
	Reason string
}

func (e *InvalidBatchError) Error() string {
	return fmt.Sprintf("prolly: invalid batch entry at index %d: %s", e.Index, e.Reason)
}

// BusyError is returned by the sync fast path when another mutation
// currently holds the tree's lock.
type BusyError struct{}

func (e *BusyError) Error() string {
	return "prolly: busy: a mutation is in progress"
}

// InvalidArgumentError covers caller-supplied bytes that are structurally
// malformed for the operation requested (e.g. a hash string of the wrong
// length passed where a Hash was expected).
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "prolly: invalid argument: " + e.Reason
}
