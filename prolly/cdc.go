package prolly

import (
	"math/bits"

	"github.com/kch42/buzhash"
)

// buzhashWindow is the rolling window width fed to buzhash. It needs to
// be smaller than cdcMinSize so the hash has "forgotten" the start of a
// chunk by the time a boundary becomes eligible.
const buzhashWindow = 48

// maskForAverage picks a boundary mask whose expected run length (number
// of bytes between zero bits, geometrically distributed) is avg. A
// boundary fires when the low bits of the rolling hash are all zero, so
// the mask width is floor(log2(avg)) bits of 1s.
func maskForAverage(avg int) uint32 {
	if avg <= 1 {
		return 0
	}
	bitsWanted := bits.Len(uint(avg)) - 1
	if bitsWanted <= 0 {
		return 0
	}
	if bitsWanted > 31 {
		bitsWanted = 31
	}
	return (uint32(1) << uint(bitsWanted)) - 1
}

// contentDefinedBoundaries scans data with a rolling buzhash and returns
// the (exclusive) end offsets of each content-defined run: a boundary
// fires once at least min bytes have accumulated since the last boundary
// and the rolling hash's low bits (per mask) are all zero, or
// unconditionally once max bytes have accumulated. Cut positions are
// determined by content, not position, which is what gives the value
// chunker its determinism: buzhash's output depends only on the
// trailing window of bytes actually written, so independently-built
// values with the same bytes always cut in the same places. This is
// the boundary finder behind encodeValue's large-value chunking; the
// node splitter (splitter.go) solves the equivalent problem for
// entries rather than raw bytes and uses a plain per-entry hash
// instead of a rolling one.
func contentDefinedBoundaries(data []byte, min, avg, max int) []int {
	if len(data) == 0 {
		return nil
	}
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	mask := maskForAverage(avg)

	var bounds []int
	h := buzhash.NewBuzHash(buzhashWindow)
	runStart := 0
	for i := 0; i < len(data); i++ {
		h.Write([]byte{data[i]})
		runLen := i + 1 - runStart
		atEnd := i == len(data)-1
		if runLen >= max || (runLen >= min && h.Sum32()&mask == 0) || atEnd {
			bounds = append(bounds, i+1)
			runStart = i + 1
			h = buzhash.NewBuzHash(buzhashWindow)
		}
	}
	return bounds
}
