// Package tether provides a small external-state container and the
// binding primitive that connects it to a component render cycle.
//
// A Store is a plain value holder, deliberately outside any rendering
// system: it has a value, a revision counter that advances on every
// write, and synchronous update listeners. The binding hooks are what
// make a store safe to read from components whose renders may run
// speculatively, be discarded, or commit long before their effects run.
//
// # Core Types
//
// Store[T] holds one value:
//
//	counter := tether.New(0)
//	v := counter.Get()
//	counter.Set(5)
//	counter.Update(func(n int) int { return n + 1 })
//
// Every write advances the revision and notifies update listeners
// synchronously, even when the new value equals the old one. Revision
// equality is therefore a reliable "nothing happened" signal, which the
// binding depends on.
//
// # Binding
//
// Inside a component, UseStore reads the store and keeps the component
// current:
//
//	func Counter() string {
//		count, setCount := tether.UseStore(counter)
//		...
//	}
//
// UseStoreWhen narrows re-renders with a predicate over each update's
// next and previous value, and UseSetter takes only the setter without
// ever re-rendering. The binding subscribes in a post-commit effect and
// re-checks the store revision at subscribe time, so a write landing
// between a component's render and its subscription still produces
// exactly one re-render instead of a silently stale component.
//
// # Shared Declarations
//
// Shared[T] declares a store at package level without fixing the
// backing cell; each hosting session resolves it to its own store, so
// shared declarations cannot leak state across sessions.
//
// # Thread Safety
//
// Stores accept writes from any goroutine; notification runs on the
// writing goroutine, one transition at a time. Hook state is tracked
// per goroutine, so code spawned from a component adopts a scope
// explicitly via WithScope.
package tether
