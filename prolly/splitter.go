package prolly

import (
	"encoding/binary"

	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// splitEntries partitions n entries into contiguous segments, each sized
// minFanout <= len <= 2*targetFanout. It chooses split points where a
// hash of the entry's key matches a boundary predicate calibrated to
// targetFanout, falling back to a midpoint if no content boundary turns
// up within the allowed window, so minFanout <= leftCount and
// rightCount <= 2*targetFanout always holds. keyAt(i) returns the bytes
// that name entry i (a leaf entry's key, or an internal entry's boundary
// key) for the purpose of boundary hashing.
//
// Folds two ideas into one: a content hash computed over each candidate
// entry's key (a rolling-hash-style boundary policy), with a
// deterministic midpoint fallback (a fixed-count policy) so that no
// non-root node ever falls outside [minFanout, targetFanout*2] entries,
// even on adversarial input.
//
// Returns the boundaries as entry counts from the start (i.e. cumulative
// split points, so splitEntries(...)[len-1] == n).
func splitEntries(n, minFanout, targetFanout int, keyAt func(i int) []byte) []int {
	if n <= 0 {
		return nil
	}
	maxFanout := 2 * targetFanout
	mask := maskForAverage(targetFanout)

	var bounds []int
	segStart := 0
	for segStart < n {
		remaining := n - segStart
		if remaining <= maxFanout {
			bounds = append(bounds, n)
			break
		}

		found := -1
		for length := minFanout; length <= maxFanout; length++ {
			idx := segStart + length - 1
			if idx >= n || n-(segStart+length) < minFanout {
				break
			}
			h := hashKeyForSplit(keyAt(idx))
			if h&mask == 0 {
				found = segStart + length
				break
			}
		}
		if found == -1 {
			// No content-defined boundary found within the allowed
			// window: fall back to a midpoint split at targetFanout,
			// which always satisfies minFanout <= targetFanout <=
			// maxFanout given Config.Validate's invariant.
			found = segStart + targetFanout
		}
		bounds = append(bounds, found)
		segStart = found
	}
	return bounds
}

func hashKeyForSplit(key []byte) uint32 {
	h := hash.Of(key)
	return binary.LittleEndian.Uint32(h[:4])
}
