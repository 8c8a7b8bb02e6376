package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfDeterministic(t *testing.T) {
	a := Of([]byte("hello"))
	b := Of([]byte("hello"))
	assert.Equal(t, a, b)

	c := Of([]byte("hello!"))
	assert.NotEqual(t, a, c)
}

func TestEmpty(t *testing.T) {
	var h Hash
	assert.True(t, h.IsEmpty())
	assert.False(t, Of([]byte("x")).IsEmpty())
}

func TestStringRoundTrip(t *testing.T) {
	h := Of([]byte("round trip me"))
	s := h.String()
	assert.Len(t, s, StringLen)

	got, ok := Parse(s)
	require.True(t, ok)
	assert.Equal(t, h, got)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, ok := Parse("not a hash")
	assert.False(t, ok)

	_, ok = Parse("")
	assert.False(t, ok)
}

func TestSet(t *testing.T) {
	a, b := Of([]byte("a")), Of([]byte("b"))
	s := NewSet(a)
	s.Insert(b)
	assert.True(t, s.Has(a))
	assert.True(t, s.Has(b))
	assert.Equal(t, 2, s.Size())
	assert.False(t, s.Has(Of([]byte("c"))))
}
