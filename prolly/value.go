package prolly

import (
	"context"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// Descriptor names one chunk body of a Chunked value.
type Descriptor struct {
	Hash   hash.Hash
	Length uint64
}

// ValueRepr is the tagged Inline/Chunked sum type a value takes: there is
// no subtype hierarchy, just these two shapes of one value.
type ValueRepr struct {
	Inline []byte
	Chunks []Descriptor
}

// IsInline reports whether v holds its bytes inline rather than as chunk
// descriptors.
func (v ValueRepr) IsInline() bool {
	return v.Chunks == nil
}

// encodeValue encodes a value for storage: values at or under
// maxInlineValueSize stay Inline; larger values are split by the
// content-defined chunker and each resulting chunk is written to store
// (idempotently — Put is a no-op if the hash is already present, so
// identical values across keys dedup for free).
func encodeValue(ctx context.Context, data []byte, cfg Config, store chunks.Store) (ValueRepr, error) {
	if len(data) <= cfg.MaxInlineValueSize {
		cp := make([]byte, len(data))
		copy(cp, data)
		return ValueRepr{Inline: cp}, nil
	}

	bounds := contentDefinedBoundaries(data, cfg.CDCMinSize, cfg.CDCAvgSize, cfg.CDCMaxSize)
	descs := make([]Descriptor, 0, len(bounds))
	start := 0
	for _, end := range bounds {
		body := data[start:end]
		c := chunks.NewChunk(body)
		if err := store.Put(ctx, c); err != nil {
			return ValueRepr{}, err
		}
		descs = append(descs, Descriptor{Hash: c.Hash(), Length: uint64(len(body))})
		start = end
	}
	return ValueRepr{Chunks: descs}, nil
}

// decodeValue reassembles a Chunked value by
// fetching and concatenating its descriptor chunks in order. A missing
// descriptor chunk surfaces ChunkNotFoundError.
func decodeValue(ctx context.Context, v ValueRepr, store chunks.Store) ([]byte, error) {
	if v.IsInline() {
		return v.Inline, nil
	}
	var total uint64
	for _, d := range v.Chunks {
		total += d.Length
	}
	out := make([]byte, 0, total)
	for _, d := range v.Chunks {
		c, err := store.Get(ctx, d.Hash)
		if err != nil {
			return nil, &ChunkNotFoundError{Hash: d.Hash}
		}
		out = append(out, c.Data()...)
	}
	return out, nil
}
