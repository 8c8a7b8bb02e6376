package prolly

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListenerRegistryFiresInOrder(t *testing.T) {
	r := newListenerRegistry(zap.NewNop())
	var got []int
	r.onChange(func(Event) { got = append(got, 1) })
	r.onChange(func(Event) { got = append(got, 2) })

	r.fire(Event{Type: EventInsert})
	require.Equal(t, []int{1, 2}, got)
}

func TestListenerRegistryOffChangeRemoves(t *testing.T) {
	r := newListenerRegistry(zap.NewNop())
	called := false
	token := r.onChange(func(Event) { called = true })
	r.offChange(token)

	r.fire(Event{Type: EventInsert})
	require.False(t, called)
}

func TestListenerPanicDoesNotStopOthers(t *testing.T) {
	r := newListenerRegistry(zap.NewNop())
	var secondCalled bool
	r.onChange(func(Event) { panic("boom") })
	r.onChange(func(Event) { secondCalled = true })

	require.NotPanics(t, func() { r.fire(Event{Type: EventDelete}) })
	require.True(t, secondCalled)
}

func TestOffChangeUnknownTokenIsNoop(t *testing.T) {
	r := newListenerRegistry(zap.NewNop())
	require.NotPanics(t, func() { r.offChange(999) })
}
