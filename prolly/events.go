package prolly

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Ntropish/prolly-gunna-sub000/hash"
)

// EventType names the mutation that produced an Event.
type EventType string

const (
	EventInsert      EventType = "insert"
	EventInsertBatch EventType = "insertBatch"
	EventDelete      EventType = "delete"
	EventCheckout    EventType = "checkout"
)

// Event is delivered to every registered listener after a mutation that
// actually changed the root hash.
type Event struct {
	Type        EventType
	OldRootHash *hash.Hash
	NewRootHash *hash.Hash
}

// Listener receives Events fired by a Tree's listener registry.
type Listener func(Event)

// listenerRegistry tracks OnChange subscriptions under a token so OffChange
// can remove exactly one. A listener panic is caught, logged, and the
// registry is otherwise unaffected: a broken observer must never corrupt
// tree state.
type listenerRegistry struct {
	mu        sync.Mutex
	nextToken int
	listeners map[int]Listener
	log       *zap.Logger
}

func newListenerRegistry(log *zap.Logger) *listenerRegistry {
	return &listenerRegistry{listeners: make(map[int]Listener), log: log}
}

// onChange registers fn and returns a token for later removal via
// offChange.
func (r *listenerRegistry) onChange(fn Listener) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	token := r.nextToken
	r.nextToken++
	r.listeners[token] = fn
	return token
}

// offChange removes the listener named by token. Removing an unknown or
// already-removed token is a silent no-op.
func (r *listenerRegistry) offChange(token int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, token)
}

// fire invokes every registered listener synchronously, in token order,
// after the mutator that produced ev has already released the tree's
// lock. Each listener runs under its own recover so one observer's panic
// can't take down the caller or skip the remaining listeners.
func (r *listenerRegistry) fire(ev Event) {
	r.mu.Lock()
	tokens := make([]int, 0, len(r.listeners))
	for t := range r.listeners {
		tokens = append(tokens, t)
	}
	sort.Ints(tokens)
	fns := make([]Listener, len(tokens))
	for i, t := range tokens {
		fns[i] = r.listeners[t]
	}
	r.mu.Unlock()

	for i, fn := range fns {
		r.invokeSafely(fn, ev, tokens[i])
	}
}

func (r *listenerRegistry) invokeSafely(fn Listener, ev Event, token int) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.log != nil {
				r.log.Warn("change listener panicked", zap.Int("token", token), zap.Any("recovered", rec))
			}
		}
	}()
	fn(ev)
}
