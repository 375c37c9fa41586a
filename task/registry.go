// Package task implements the per-connection task bookkeeping shared by both
// endpoints: an insertion-ordered registry keyed by taskId (spec.md §3/§4.5),
// and the strictly-increasing id sequence each client connection uses to
// name its own tasks (spec.md §4.3, invariant 2 in spec.md §8).
//
// Grounded on the original implementation's order-preserving Map helper
// (original_source/microse/utils.py Map) and its per-connection `self.tasks`
// table; reimplemented here with a mutex-guarded map plus an order slice
// since Go has no built-in ordered map.
package task

import "sync"

// Registry is a goroutine-safe, insertion-ordered map from taskId to V. Both
// the client's per-task awaiter queues and the server's per-connection
// iterator table use it.
type Registry[V any] struct {
	mu    sync.Mutex
	order []int64
	items map[int64]V
}

// NewRegistry creates an empty registry.
func NewRegistry[V any]() *Registry[V] {
	return &Registry[V]{items: make(map[int64]V)}
}

// Set inserts or overwrites the value for id, appending to the order slice
// only on first insertion.
func (r *Registry[V]) Set(id int64, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[id]; !exists {
		r.order = append(r.order, id)
	}
	r.items[id] = v
}

// Get returns the value for id and whether it was present.
func (r *Registry[V]) Get(id int64) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	return v, ok
}

// Delete removes id and returns the value that was stored, if any.
func (r *Registry[V]) Delete(id int64) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	if ok {
		delete(r.items, id)
		r.order = removeFirst(r.order, id)
	}
	return v, ok
}

// Len reports the number of tracked tasks.
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Drain removes every entry and returns the values in insertion order. Used
// when a connection closes and every outstanding task must be resolved
// (spec.md §4.3 "Cancellation on disconnect").
func (r *Registry[V]) Drain() []V {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]V, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	r.order = nil
	r.items = make(map[int64]V)
	return out
}

func removeFirst(ids []int64, target int64) []int64 {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Sequence issues monotonically increasing task ids starting at 1, unique
// per connection (spec.md §4.3, invariant 2).
type Sequence struct {
	mu   sync.Mutex
	next int64
}

// Next returns the next id in the sequence.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}
