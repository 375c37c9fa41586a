package router

import (
	"sync"
	"sync/atomic"
)

// Caller is the minimal surface router needs from a client connection to
// dispatch an invocation — implemented by *client.Conn. Kept as an
// interface here (rather than importing the client package) to avoid a
// dependency cycle, since client imports router to hold its module tables.
type Caller interface {
	// Invoke sends an INVOKE frame for module/method with args and returns a
	// handle the caller drives as either a future or an iterator.
	Invoke(module, method string, args []any) any
}

// RemoteHandle wraps one remote connection's view of a module: the
// connection used to reach it, and a readiness flag toggled by the
// reconnect supervisor (spec.md §4.7) and by the handshake (§4.10).
type RemoteHandle struct {
	ServerID string
	Conn     Caller

	ready atomic.Int32
}

// NewRemoteHandle creates a handle, initially not ready until the caller
// marks it so (normally right after a successful CONNECT handshake).
func NewRemoteHandle(serverID string, conn Caller) *RemoteHandle {
	return &RemoteHandle{ServerID: serverID, Conn: conn}
}

// SetReady flips the readiness flag. true lets the handle participate in
// routing; false (set by the reconnect supervisor on unexpected close)
// excludes it from the ready subset without removing it from the table.
func (h *RemoteHandle) SetReady(ready bool) {
	if ready {
		h.ready.Store(1)
	} else {
		h.ready.Store(0)
	}
}

// Ready reports the current readiness flag.
func (h *RemoteHandle) Ready() bool {
	return h.ready.Load() == 1
}

// Table is the per-module RemoteSingletonTable: an insertion-ordered mapping
// from serverId to RemoteHandle (spec.md §3). Insertion order backs the
// "table's insertion order" routing tie-break in spec.md §4.8.
type Table struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*RemoteHandle
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{byID: make(map[string]*RemoteHandle)}
}

// Set inserts or replaces the handle for serverID, appending to insertion
// order only on first insertion.
func (t *Table) Set(serverID string, h *RemoteHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byID[serverID]; !exists {
		t.order = append(t.order, serverID)
	}
	t.byID[serverID] = h
}

// Delete removes the handle for serverID, if present.
func (t *Table) Delete(serverID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[serverID]; !ok {
		return
	}
	delete(t.byID, serverID)
	for i, id := range t.order {
		if id == serverID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Get returns the handle registered for serverID, used for the exact-route-
// match case of spec.md §4.8 which bypasses the readiness filter entirely.
func (t *Table) Get(serverID string) (*RemoteHandle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.byID[serverID]
	return h, ok
}

// Ready returns the handles currently marked ready, in insertion order.
func (t *Table) Ready() []*RemoteHandle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*RemoteHandle, 0, len(t.order))
	for _, id := range t.order {
		if h := t.byID[id]; h.Ready() {
			out = append(out, h)
		}
	}
	return out
}

// All returns every handle in insertion order regardless of readiness, used
// by the client to find the handle backed by a given connection.
func (t *Table) All() []*RemoteHandle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*RemoteHandle, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// Len reports the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}
