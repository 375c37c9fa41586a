package task

import (
	"encoding/json"
	"sync"

	"chanrpc/frame"
)

// Result is what a waiter in a Queue resolves to: either a decoded payload
// or an error.
type Result struct {
	Data json.RawMessage
	Err  error
}

// Waiter is one outstanding frame exchange for a task: the event that was
// sent and the data carried alongside it (the YIELD input or the THROW
// error; nil for INVOKE and RETURN) — needed so that
// an unexpected disconnect can resolve the waiter the way spec.md §4.3
// mandates per event kind, not just with a generic error.
type Waiter struct {
	Event frame.Event
	Input json.RawMessage
	ch    chan Result
}

// Queue is the FIFO of outstanding frame exchanges for a single task.
// Exactly one frame may be in flight per task at a time (spec.md §8,
// invariant 3); Resolve/Reject always complete the head.
type Queue struct {
	mu      sync.Mutex
	waiters []*Waiter
}

// Push enqueues a new waiter for the given outgoing event and returns both
// the waiter (so the caller can inspect Event/Input on disconnect) and a
// channel that receives exactly one Result.
func (q *Queue) Push(event frame.Event, input json.RawMessage) (*Waiter, <-chan Result) {
	w := &Waiter{Event: event, Input: input, ch: make(chan Result, 1)}
	q.mu.Lock()
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()
	return w, w.ch
}

// Resolve completes the head waiter with data. Returns false if the queue
// was empty (a reply arrived for a task with nothing in flight).
func (q *Queue) Resolve(data json.RawMessage) bool {
	return q.complete(Result{Data: data})
}

// Reject completes the head waiter with an error.
func (q *Queue) Reject(err error) bool {
	return q.complete(Result{Err: err})
}

func (q *Queue) complete(r Result) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) == 0 {
		return false
	}
	w := q.waiters[0]
	q.waiters = q.waiters[1:]
	w.ch <- r
	close(w.ch)
	return true
}

// Reject resolves a waiter obtained from Drain with err. Drain does not
// resolve the waiters it removes because the caller (a disconnect handler)
// applies per-event semantics first; this is how it then completes each one.
func (w *Waiter) Reject(err error) {
	w.ch <- Result{Err: err}
	close(w.ch)
}

// Resolve resolves a waiter obtained from Drain with data, the counterpart
// to Reject for the disconnect-cancellation events (spec.md §4.3) that
// settle without an error: INVOKE, YIELD, and RETURN.
func (w *Waiter) Resolve(data json.RawMessage) {
	w.ch <- Result{Data: data}
	close(w.ch)
}

// Cancel removes w from the queue without resolving it, used when a caller
// gives up on a waiter (a timeout, or a first Next reclaiming the INVOKE
// waiter). It returns false if w was already resolved or removed, which
// lets the caller detect a reply that arrived first.
func (q *Queue) Cancel(w *Waiter) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, cur := range q.waiters {
		if cur == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the number of outstanding waiters (0 or 1 under normal use;
// spec.md §3's "queue is empty iff no outstanding frame is in flight").
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// Drain removes every waiter and returns them in FIFO order, without
// resolving them — the caller applies per-event disconnect semantics
// (spec.md §4.3) and resolves each one itself.
func (q *Queue) Drain() []*Waiter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.waiters
	q.waiters = nil
	return out
}
