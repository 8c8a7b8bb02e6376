package prolly

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"sort"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

const (
	containerMagic   = "PRLY"
	containerVersion = uint16(2)
)

// saveContainer serializes the chunks reachable from rootHash (exactly
// the set GC would keep) plus cfg and an optional description into one
// self-describing, CRC-framed byte blob.
func saveContainer(ctx context.Context, store chunks.Store, cfg Config, rootHash *hash.Hash, description string) ([]byte, error) {
	var reachable []hash.Hash
	if rootHash != nil {
		live := hash.NewSet()
		if err := walkReachableNoIO(ctx, store, *rootHash, live); err != nil {
			return nil, err
		}
		reachable = live.Slice()
		sort.Slice(reachable, func(i, j int) bool { return reachable[i].Less(reachable[j]) })
	}

	var buf bytes.Buffer
	buf.WriteString(containerMagic)
	writeU16(&buf, containerVersion)
	writeU16(&buf, 0) // flags, reserved

	cfgBytes := encodeConfig(cfg)
	writeU32(&buf, uint32(len(cfgBytes)))
	buf.Write(cfgBytes)

	descBytes := []byte(description)
	writeU32(&buf, uint32(len(descBytes)))
	buf.Write(descBytes)

	if rootHash != nil {
		buf.WriteByte(1)
		buf.Write(rootHash[:])
	} else {
		buf.WriteByte(0)
	}

	writeU64(&buf, uint64(len(reachable)))
	for _, h := range reachable {
		c, err := store.Get(ctx, h)
		if err != nil {
			return nil, &ChunkNotFoundError{Hash: h}
		}
		body := c.Data()
		writeU64(&buf, uint64(len(body)))
		buf.Write(body)
		writeU32(&buf, crc32.ChecksumIEEE(body))
	}

	trailer := crc32.ChecksumIEEE(buf.Bytes())
	writeU32(&buf, trailer)
	return buf.Bytes(), nil
}

// loadContainer parses a saveContainer blob back into a chunk set, config,
// and root hash, validating magic/version/CRCs/root-hash/config along the
// way per the format's self-checking design.
func loadContainer(ctx context.Context, store chunks.Store, data []byte) (Config, *hash.Hash, string, error) {
	if len(data) < 4+2+2+4 {
		return Config{}, nil, "", &CorruptContainerError{Reason: "too short"}
	}

	trailerAt := len(data) - 4
	wantTrailer := binary.LittleEndian.Uint32(data[trailerAt:])
	gotTrailer := crc32.ChecksumIEEE(data[:trailerAt])
	if wantTrailer != gotTrailer {
		return Config{}, nil, "", &CorruptContainerError{Reason: "trailer CRC mismatch"}
	}

	r := &reader{buf: data[:trailerAt]}

	magic, err := r.bytes(4)
	if err != nil || string(magic) != containerMagic {
		return Config{}, nil, "", &CorruptContainerError{Reason: "bad magic"}
	}
	version, err := r.u16()
	if err != nil || version != containerVersion {
		return Config{}, nil, "", &CorruptContainerError{Reason: "unsupported version"}
	}
	if _, err := r.u16(); err != nil { // flags, ignored
		return Config{}, nil, "", &CorruptContainerError{Reason: "truncated flags"}
	}

	cfgLen, err := r.u32()
	if err != nil {
		return Config{}, nil, "", &CorruptContainerError{Reason: "truncated config length"}
	}
	cfgBytes, err := r.bytes(int(cfgLen))
	if err != nil {
		return Config{}, nil, "", &CorruptContainerError{Reason: "truncated config block"}
	}
	cfg, err := decodeConfig(cfgBytes)
	if err != nil {
		return Config{}, nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, "", &CorruptContainerError{Reason: "config failed validation: " + err.Error()}
	}

	descLen, err := r.u32()
	if err != nil {
		return Config{}, nil, "", &CorruptContainerError{Reason: "truncated description length"}
	}
	descBytes, err := r.bytes(int(descLen))
	if err != nil {
		return Config{}, nil, "", &CorruptContainerError{Reason: "truncated description"}
	}

	present, err := r.byte_()
	if err != nil {
		return Config{}, nil, "", &CorruptContainerError{Reason: "truncated root presence flag"}
	}
	var rootHash *hash.Hash
	if present == 1 {
		hb, err := r.bytes(hash.ByteLen)
		if err != nil {
			return Config{}, nil, "", &CorruptContainerError{Reason: "truncated root hash"}
		}
		var h hash.Hash
		copy(h[:], hb)
		rootHash = &h
	}

	count, err := r.u64()
	if err != nil {
		return Config{}, nil, "", &CorruptContainerError{Reason: "truncated chunk count"}
	}

	for i := uint64(0); i < count; i++ {
		bodyLen, err := r.u64()
		if err != nil {
			return Config{}, nil, "", &CorruptContainerError{Reason: "truncated body length"}
		}
		body, err := r.bytes(int(bodyLen))
		if err != nil {
			return Config{}, nil, "", &CorruptContainerError{Reason: "truncated chunk body"}
		}
		wantCRC, err := r.u32()
		if err != nil {
			return Config{}, nil, "", &CorruptContainerError{Reason: "truncated chunk CRC"}
		}
		if crc32.ChecksumIEEE(body) != wantCRC {
			return Config{}, nil, "", &CorruptContainerError{Reason: "chunk CRC mismatch"}
		}
		if err := store.Put(ctx, chunks.NewChunk(body)); err != nil {
			return Config{}, nil, "", err
		}
	}

	if rootHash != nil {
		n, err := readNode(ctx, store, *rootHash)
		if err != nil {
			return Config{}, nil, "", err
		}
		if n.Hash() != *rootHash {
			return Config{}, nil, "", &CorruptContainerError{Reason: "root node hash mismatch"}
		}
	}

	return cfg, rootHash, string(descBytes), nil
}

// exportReachableChunks returns every chunk reachable from rootHash as a
// hash->bytes map, the seed a NewFromRoot call on another store needs to
// reconstruct the same tree.
func exportReachableChunks(ctx context.Context, store chunks.Store, rootHash *hash.Hash) (map[hash.Hash][]byte, error) {
	out := map[hash.Hash][]byte{}
	if rootHash == nil {
		return out, nil
	}
	live := hash.NewSet()
	if err := walkReachableNoIO(ctx, store, *rootHash, live); err != nil {
		return nil, err
	}
	for _, h := range live.Slice() {
		c, err := store.Get(ctx, h)
		if err != nil {
			return nil, &ChunkNotFoundError{Hash: h}
		}
		out[h] = c.Data()
	}
	return out, nil
}

// walkReachableNoIO is gc's walkReachable without the errgroup fan-out:
// save runs as part of a mutator-held lock already, so there is no
// concurrent caller to race against and a plain recursive walk suffices.
// The set it fills has no order; saveContainer sorts it by hash so the
// chunk order within the container is deterministic.
func walkReachableNoIO(ctx context.Context, store chunks.Store, h hash.Hash, live hash.Set) error {
	if live.Has(h) {
		return nil
	}
	live.Insert(h)

	n, err := readNode(ctx, store, h)
	if err != nil {
		return err
	}
	if n.IsLeaf() {
		for _, e := range n.Leaves {
			if e.Value.IsInline() {
				continue
			}
			for _, d := range e.Value.Chunks {
				if live.Has(d.Hash) {
					continue
				}
				ok, err := store.Has(ctx, d.Hash)
				if err != nil {
					return err
				}
				if !ok {
					return &ChunkNotFoundError{Hash: d.Hash}
				}
				live.Insert(d.Hash)
			}
		}
		return nil
	}
	for _, e := range n.Internals {
		if err := walkReachableNoIO(ctx, store, e.ChildHash, live); err != nil {
			return err
		}
	}
	return nil
}

func encodeConfig(cfg Config) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(cfg.MinFanout))
	writeU32(&buf, uint32(cfg.TargetFanout))
	writeU32(&buf, uint32(cfg.CDCMinSize))
	writeU32(&buf, uint32(cfg.CDCAvgSize))
	writeU32(&buf, uint32(cfg.CDCMaxSize))
	writeU32(&buf, uint32(cfg.MaxInlineValueSize))
	return buf.Bytes()
}

func decodeConfig(b []byte) (Config, error) {
	r := &reader{buf: b}
	minFanout, err := r.u32()
	if err != nil {
		return Config{}, &CorruptContainerError{Reason: "truncated config.minFanout"}
	}
	targetFanout, err := r.u32()
	if err != nil {
		return Config{}, &CorruptContainerError{Reason: "truncated config.targetFanout"}
	}
	cdcMin, err := r.u32()
	if err != nil {
		return Config{}, &CorruptContainerError{Reason: "truncated config.cdcMinSize"}
	}
	cdcAvg, err := r.u32()
	if err != nil {
		return Config{}, &CorruptContainerError{Reason: "truncated config.cdcAvgSize"}
	}
	cdcMax, err := r.u32()
	if err != nil {
		return Config{}, &CorruptContainerError{Reason: "truncated config.cdcMaxSize"}
	}
	maxInline, err := r.u32()
	if err != nil {
		return Config{}, &CorruptContainerError{Reason: "truncated config.maxInlineValueSize"}
	}
	return Config{
		MinFanout:          int(minFanout),
		TargetFanout:       int(targetFanout),
		CDCMinSize:         int(cdcMin),
		CDCAvgSize:         int(cdcAvg),
		CDCMaxSize:         int(cdcMax),
		MaxInlineValueSize: int(maxInline),
	}, nil
}
