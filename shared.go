package tether

import "sync"

type storesKeyType struct{}

// StoresKey is the scope value key under which a host installs its
// *Stores registry. Hosts set it on their root scope; Shared.Resolve
// looks it up through the scope chain.
var StoresKey any = storesKeyType{}

// Stores maps Shared declarations to the store instances backing them
// for one host. Giving every session its own registry is what keeps a
// package-level Shared declaration from leaking one session's state
// into another's.
type Stores struct {
	mu   sync.Mutex
	byID map[uint64]any
}

// NewStores creates an empty registry.
func NewStores() *Stores {
	return &Stores{byID: make(map[uint64]any)}
}

func (r *Stores) resolve(id uint64, create func() any) any {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.byID[id]; ok {
		return v
	}
	v := create()
	r.byID[id] = v
	return v
}

// Shared declares a store identity without fixing the backing cell.
// Declared once at package level, it resolves to one store per host
// registry, so the same declaration yields independent state per
// session. Outside any host (tools, headless code) it resolves to a
// process-wide fallback store.
//
//	var counter = tether.NewShared(0)
//
//	func Counter() string {
//		count, setCount := tether.UseShared(counter)
//		...
//	}
type Shared[T any] struct {
	id      uint64
	initial T

	fallbackOnce sync.Once
	fallback     *Store[T]
}

// NewShared declares a shared store with an initial value. The value is
// used each time a registry materializes its store, and once for the
// process-wide fallback.
func NewShared[T any](initial T) *Shared[T] {
	return &Shared[T]{id: nextID(), initial: initial}
}

// Resolve returns the store backing this declaration for the current
// goroutine's scope. With a Stores registry in scope the store is
// created there on first use; otherwise the fallback store is used.
func (sh *Shared[T]) Resolve() *Store[T] {
	if sc := currentScope(); sc != nil {
		if reg, ok := sc.Value(StoresKey).(*Stores); ok {
			return reg.resolve(sh.id, func() any { return New(sh.initial) }).(*Store[T])
		}
	}

	sh.fallbackOnce.Do(func() {
		sh.fallback = New(sh.initial)
	})
	return sh.fallback
}

// UseShared resolves the declaration against the current scope and
// binds to the resulting store. Shorthand for UseStore(sh.Resolve()).
func UseShared[T any](sh *Shared[T]) (T, Setter[T]) {
	return UseStore(sh.Resolve())
}
