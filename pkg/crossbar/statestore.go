package crossbar

import (
	"sync"
	"sync/atomic"
)

// stateStore keeps the most recent message per key for one channel. Only
// messages published with store=true and a non-empty key are retained;
// entries never expire and are cleared only on channel removal.
//
// Writers are serialized per key by sync.Map; snapshot iterates without
// blocking upserts and every returned entry was present in the store at
// some instant during the iteration.
type stateStore[T any] struct {
	entries sync.Map // key string -> Message[T]
	count   atomic.Int64
}

func newStateStore[T any]() *stateStore[T] {
	return &stateStore[T]{}
}

// upsert stores m as the latest value for m.Key.
func (s *stateStore[T]) upsert(m Message[T]) {
	if _, loaded := s.entries.Swap(m.Key, m); !loaded {
		s.count.Add(1)
	}
}

// tryGet returns the latest message for key, if any.
func (s *stateStore[T]) tryGet(key string) (Message[T], bool) {
	v, ok := s.entries.Load(key)
	if !ok {
		var zero Message[T]
		return zero, false
	}
	return v.(Message[T]), true
}

// snapshot returns the current state in arbitrary key order.
func (s *stateStore[T]) snapshot() []Message[T] {
	out := make([]Message[T], 0, s.count.Load())
	s.entries.Range(func(_, v any) bool {
		out = append(out, v.(Message[T]))
		return true
	})
	return out
}

// len returns the number of stored keys.
func (s *stateStore[T]) len() int64 {
	return s.count.Load()
}

// clear removes all entries.
func (s *stateStore[T]) clear() {
	s.entries.Range(func(k, _ any) bool {
		s.entries.Delete(k)
		return true
	})
	s.count.Store(0)
}
