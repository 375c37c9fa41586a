package server

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
)

// record is one entry of the module registry (spec.md §3 ModuleRecord).
type record struct {
	name    string
	factory Factory
	init    Hook
	destroy Hook

	instance Module
	ready    atomic.Int32
}

func (r *record) Ready() bool { return r.ready.Load() == 1 }

// Registry is the server's name → ModuleRecord table (spec.md §4.11).
// Insertion order governs the order lifecycle hooks run in at Open/Close.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byName map[string]*record
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*record)}
}

// Register inserts a module. init and destroy may be nil. Calling Register
// again for the same name replaces the record (its singleton, if any, is
// discarded — callers should only do this before Open).
func (reg *Registry) Register(name string, factory Factory, init, destroy Hook) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.byName[name]; !exists {
		reg.order = append(reg.order, name)
	}
	reg.byName[name] = &record{name: name, factory: factory, init: init, destroy: destroy}
}

// Open constructs every registered module's singleton in insertion order; if
// lifecycle is true it also awaits each singleton's init hook before marking
// it ready. With lifecycle disabled, every module is marked ready
// immediately without running init — used by tests and by deployments that
// manage their own startup ordering.
func (reg *Registry) Open(ctx context.Context, lifecycle bool) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, name := range reg.order {
		rec := reg.byName[name]
		rec.instance = rec.factory()
		if lifecycle && rec.init != nil {
			if err := rec.init(ctx); err != nil {
				return err
			}
		}
		rec.ready.Store(1)
	}
	return nil
}

// Close marks every module not-ready and awaits its destroy hook, collecting
// every hook's failure rather than stopping at the first — a crashing
// destroy hook for one module must not leave the others undestroyed.
func (reg *Registry) Close(ctx context.Context) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var errs error
	for _, name := range reg.order {
		rec := reg.byName[name]
		rec.ready.Store(0)
		if rec.destroy != nil {
			if err := rec.destroy(ctx); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

// Get returns the record for name, if registered.
func (reg *Registry) Get(name string) (instance Module, ready bool, ok bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rec, ok := reg.byName[name]
	if !ok {
		return nil, false, false
	}
	return rec.instance, rec.Ready(), true
}
