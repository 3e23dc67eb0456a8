package tether

import (
	"reflect"
	"sync"
)

// Event names the two listener channels a Store exposes.
type Event uint8

const (
	// EventUpdate fires synchronously after every Set or Update call,
	// delivering the previous and next value to each listener.
	EventUpdate Event = iota + 1

	// EventEffect fires when a binding's post-commit effect runs. It
	// gives the store a hook to perform first-display setup (such as
	// attaching an external-change watcher) once the value is actually
	// on screen, not merely constructed.
	EventEffect
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventUpdate:
		return "update"
	case EventEffect:
		return "effect"
	default:
		return "unknown"
	}
}

// Change carries one value transition to update listeners.
type Change[T any] struct {
	Prev T
	Next T
}

// Unsubscribe removes a listener registered with OnUpdate or OnEffect.
// Calling it more than once is a no-op.
type Unsubscribe func()

type updateListener[T any] struct {
	id uint64
	fn func(Change[T])
}

type effectListener struct {
	id uint64
	fn func()
}

// Store is a mutable cell holding one value of type T, a revision
// counter, and listener registries for the update and effect events.
//
// The revision advances on every Set or Update, including writes of a
// value equal to the current one. There is deliberately no equality
// short-circuit: subscribers use the revision to detect whether they
// missed a transition, so every write must be observable as a change.
// Two unequal revision reads imply at least one intervening write; two
// equal reads imply none.
//
// Notification is synchronous: every update listener observes the new
// value before Set returns, on the calling goroutine. Listener panics
// are not recovered here; they propagate to the Set caller. Set calls
// issued from inside a listener are queued and applied after the
// in-progress notification completes, so listeners always observe a
// one-step-at-a-time sequence of transitions.
//
// A Store is created with New and lives as long as something references
// it. Callers own disposal of any resources a store wrapper acquires.
type Store[T any] struct {
	id uint64

	mu       sync.Mutex
	value    T
	revision uint64

	updates []updateListener[T]
	effects []effectListener

	// notifying marks an update pass in progress on some goroutine.
	// Writes arriving during the pass are queued on pending and applied
	// by the in-progress pass, one transition at a time.
	notifying bool
	pending   []func(T) T
}

// New creates a store holding initial. The revision starts at zero.
func New[T any](initial T) *Store[T] {
	return &Store[T]{
		id:    nextID(),
		value: initial,
	}
}

// Get returns the current value. No side effects.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the value, advances the revision, and synchronously
// notifies every update listener with the transition.
func (s *Store[T]) Set(next T) {
	s.apply(func(T) T { return next })
}

// Update is the updater-function form of Set: fn receives the current
// value and returns the next one. The write and notification semantics
// are identical to Set.
func (s *Store[T]) Update(fn func(T) T) {
	s.apply(fn)
}

// apply runs one write, or queues it when a notification pass is
// already in progress on this store. The goroutine that flips
// notifying owns the pass: it applies its own write, then drains
// writes queued by listeners or other goroutines, one transition at a
// time, and only releases ownership once the queue is empty.
func (s *Store[T]) apply(step func(T) T) {
	s.mu.Lock()
	if s.notifying {
		s.pending = append(s.pending, step)
		s.mu.Unlock()
		return
	}
	s.notifying = true
	s.mu.Unlock()

	// A panicking updater or listener aborts the pass: queued writes
	// are dropped, ownership is released, and the panic propagates to
	// the Set caller. While notifying is still set no new pass can
	// start, so the state reset here cannot clobber anyone else's.
	completed := false
	defer func() {
		if completed {
			return
		}
		s.mu.Lock()
		s.notifying = false
		s.pending = nil
		s.mu.Unlock()
	}()

	for {
		// Pass ownership makes this goroutine the only writer, so the
		// updater can run without the lock and is free to call Get or
		// queue further writes.
		s.mu.Lock()
		prev := s.value
		s.mu.Unlock()

		next := step(prev)

		s.mu.Lock()
		s.value = next
		s.revision++

		// Snapshot the listener set so that subscribe/unsubscribe from
		// inside a listener only affects subsequent events: nothing is
		// skipped or double-invoked for the current one.
		subs := make([]updateListener[T], len(s.updates))
		copy(subs, s.updates)
		s.mu.Unlock()

		change := Change[T]{Prev: prev, Next: next}
		for _, l := range subs {
			l.fn(change)
		}

		// Ownership must be released in the same critical section that
		// finds the queue empty, or a write landing in between would
		// be stranded.
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.notifying = false
			s.mu.Unlock()
			completed = true
			return
		}
		step = s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
	}
}

// Revision returns the number of writes applied so far.
func (s *Store[T]) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// OnUpdate registers fn for the update event and returns an idempotent
// unsubscribe. Registration during a notification pass takes effect
// from the next event.
func (s *Store[T]) OnUpdate(fn func(Change[T])) Unsubscribe {
	id := nextID()

	s.mu.Lock()
	s.updates = append(s.updates, updateListener[T]{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.updates {
			if l.id == id {
				s.updates = append(s.updates[:i], s.updates[i+1:]...)
				return
			}
		}
	}
}

// OnEffect registers fn for the effect event and returns an idempotent
// unsubscribe.
func (s *Store[T]) OnEffect(fn func()) Unsubscribe {
	id := nextID()

	s.mu.Lock()
	s.effects = append(s.effects, effectListener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.effects {
			if l.id == id {
				s.effects = append(s.effects[:i], s.effects[i+1:]...)
				return
			}
		}
	}
}

// Emit fires the listeners registered for ev. It is the trusted entry
// used by bindings to fire the effect event. Update events carry a
// transition and are produced only by Set and Update, so Emit with
// EventUpdate is a no-op.
func (s *Store[T]) Emit(ev Event) {
	if ev != EventEffect {
		return
	}

	s.mu.Lock()
	subs := make([]effectListener, len(s.effects))
	copy(subs, s.effects)
	s.mu.Unlock()

	for _, l := range subs {
		l.fn()
	}
}

// ID returns the unique identifier for this store. Bindings use it as
// the store half of their effect key.
func (s *Store[T]) ID() uint64 {
	return s.id
}

// StoreHandle is the type-erased part of the store surface. Every store
// and store wrapper satisfies it regardless of value type.
type StoreHandle interface {
	Revision() uint64
	Emit(Event)
	ID() uint64
}

// Bindable is the store capability set the binding primitive consumes.
// *Store[T] satisfies it, as do wrappers that delegate to one, such as
// persistent stores.
type Bindable[T any] interface {
	StoreHandle
	Get() T
	Set(T)
	Update(func(T) T)
	OnUpdate(func(Change[T])) Unsubscribe
	OnEffect(func()) Unsubscribe
}

// Setter mutates a bound store. The store itself is the setter, so the
// value returned by a binding is reference-stable for a given store.
type Setter[T any] interface {
	Set(T)
	Update(func(T) T)
}

// IsStore reports whether x satisfies the type-erased store contract.
// Bindings use it to validate their argument at call time; a failing
// check is a programmer error and panics immediately rather than being
// deferred.
func IsStore(x any) bool {
	if x == nil {
		return false
	}
	if _, ok := x.(StoreHandle); !ok {
		return false
	}
	if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return false
	}
	return true
}
