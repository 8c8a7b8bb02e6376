// Package hash defines the 32-byte content address used throughout the
// prolly tree engine. Every chunk — tree node or CDC value chunk — is
// named by the BLAKE3-256 of its canonical bytes.
package hash

import (
	"encoding/base32"
	"strings"

	"github.com/zeebo/blake3"
)

// ByteLen is the width of a Hash: BLAKE3-256 truncated to its natural
// 32-byte digest.
const ByteLen = 32

// StringLen is the length of a Hash's canonical base32 string form.
const StringLen = 52 // ceil(32*8/5) digits, no padding

var encoding = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv").WithPadding(base32.NoPadding)

// Hash is an opaque 32-byte content address.
type Hash [ByteLen]byte

// Empty is the zero hash, used as a sentinel for "no chunk".
var Empty Hash

// Of returns the content address of data: BLAKE3-256(data).
func Of(data []byte) Hash {
	sum := blake3.Sum256(data)
	var h Hash
	copy(h[:], sum[:])
	return h
}

// IsEmpty reports whether h is the zero hash.
func (h Hash) IsEmpty() bool {
	return h == Empty
}

// String renders h as a lowercase base32 string with no padding.
func (h Hash) String() string {
	return encoding.EncodeToString(h[:])
}

// Parse decodes a Hash from its String form. It returns InvalidHex-style
// errors via the ok result rather than panicking, so callers at the
// binding boundary can surface a caller-facing error.
func Parse(s string) (Hash, bool) {
	s = strings.ToLower(s)
	if len(s) != StringLen {
		return Hash{}, false
	}
	buf, err := encoding.DecodeString(s)
	if err != nil || len(buf) != ByteLen {
		return Hash{}, false
	}
	var h Hash
	copy(h[:], buf)
	return h, true
}

// MustParse is Parse but panics on malformed input; used in tests and for
// compile-time-known constants.
func MustParse(s string) Hash {
	h, ok := Parse(s)
	if !ok {
		panic("hash: invalid hash string: " + s)
	}
	return h
}

// Less provides a total order over hashes, used to sort hashes wherever
// output must be deterministic (Set iteration itself has no order).
func (h Hash) Less(o Hash) bool {
	for i := range h {
		if h[i] != o[i] {
			return h[i] < o[i]
		}
	}
	return false
}

// Set is an unordered collection of distinct hashes.
type Set map[Hash]struct{}

// NewSet builds a Set from a slice of hashes.
func NewSet(hs ...Hash) Set {
	s := make(Set, len(hs))
	for _, h := range hs {
		s[h] = struct{}{}
	}
	return s
}

// Insert adds h to the set.
func (s Set) Insert(h Hash) {
	s[h] = struct{}{}
}

// Has reports whether h is a member.
func (s Set) Has(h Hash) bool {
	_, ok := s[h]
	return ok
}

// Size returns the number of distinct hashes in the set.
func (s Set) Size() int {
	return len(s)
}

// Slice returns the set's members as a slice, in no particular order.
func (s Set) Slice() []Hash {
	out := make([]Hash, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	return out
}
