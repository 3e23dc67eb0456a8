package tether

import (
	"fmt"
	"reflect"
)

// filterMode is the tagged form of a binding's update interest: every
// update, none at all, or a caller predicate.
type filterMode uint8

const (
	filterAlways filterMode = iota + 1
	filterNever
	filterWhen
)

// UseStore binds the component to s: it returns the current value and
// a setter, and re-renders the component after every store update.
//
// The returned value is read fresh from the store on every render, so a
// discarded or repeated render can never pin a stale value. The setter
// is the store itself and therefore reference-stable for as long as the
// component keeps binding the same store.
func UseStore[T any](s Bindable[T]) (T, Setter[T]) {
	return bind("UseStore", s, filterAlways, nil)
}

// UseStoreWhen is UseStore with a selective filter: after each update
// the binding re-renders only when pred(next, prev) is true. A nil pred
// behaves like UseStore.
func UseStoreWhen[T any](s Bindable[T], pred func(next, prev T) bool) (T, Setter[T]) {
	if pred == nil {
		return bind("UseStoreWhen", s, filterAlways, nil)
	}
	return bind("UseStoreWhen", s, filterWhen, pred)
}

// UseSetter binds to s without subscribing: the component gets the
// setter but never re-renders on updates. For components that only
// write.
func UseSetter[T any](s Bindable[T]) Setter[T] {
	_, set := bind("UseSetter", s, filterNever, nil)
	return set
}

// bind is the shared binding algorithm. Its job is correctness across
// the render→commit→effect boundary: the host may run a render
// speculatively, discard it, or delay the post-commit effect, and a
// store update landing in any of those gaps must still produce exactly
// one re-render with the fresh value.
//
// The moving parts per component instance:
//
//   - a render-trigger state cell, poked with a fresh token whenever a
//     relevant update arrives; consecutive tokens are always unequal,
//     so every poke marks the scope dirty,
//   - a ref holding the store revision captured when the instance first
//     rendered, the baseline for detecting updates that landed before
//     the subscription existed,
//   - a ref holding the current render's filter closure, so the
//     long-lived subscription always applies the freshest captures,
//   - a post-commit effect keyed by store and filter identity that
//     emits the store's effect event, subscribes, and then re-checks
//     the revision against the baseline. An update that slipped into
//     the render-to-subscribe gap shows up as a revision mismatch and
//     is converted into an immediate re-render; without that check it
//     would be silently lost, leaving the component stale until some
//     unrelated render happened by.
//
// The effect's cleanup unsubscribes and refreshes the baseline to the
// store's current revision, so the next subscribe cycle compares
// against a fresh baseline rather than the first render's.
func bind[T any](hook string, s Bindable[T], mode filterMode, pred func(next, prev T) bool) (T, Setter[T]) {
	if !IsStore(s) {
		panic(fmt.Sprintf("[TETHER E003] %s requires a store, got %T", hook, s))
	}

	// Revision before value: a write landing between the two reads then
	// surfaces as a revision mismatch in the effect (one spurious
	// re-render) instead of a baseline that is too new to ever mismatch
	// (a silently stale component).
	rev := s.Revision()
	value := s.Get()

	_, forceRender := UseState(uint64(0))
	seenRev := UseRef(rev)

	// The subscribed listener outlives this render, but the filter must
	// not: a closure re-created each render carries fresh captures, so
	// the listener reads it through a ref refreshed on every render
	// rather than capturing this render's copy.
	predRef := UseRef(pred)
	predRef.Set(pred)

	// Closures re-created each render share a code pointer, so an inline
	// filter literal does not churn the effect every render. Swapping to
	// a different filter function re-keys the effect and re-subscribes.
	var predKey uintptr
	if pred != nil {
		predKey = reflect.ValueOf(pred).Pointer()
	}

	UseEffect(func() Cleanup {
		s.Emit(EventEffect)

		var off Unsubscribe
		if mode != filterNever {
			off = s.OnUpdate(func(c Change[T]) {
				if mode == filterAlways || predRef.Current()(c.Next, c.Prev) {
					forceRender(nextID())
				}
			})

			// The store may have moved between this component's last
			// render and this effect. The filter is not consulted: the
			// missed transitions are gone, only the fact that something
			// changed is still observable.
			if s.Revision() != seenRev.Current() {
				forceRender(nextID())
			}
		}

		return func() {
			if off != nil {
				off()
			}
			seenRev.Set(s.Revision())
		}
	}, s.ID(), mode, predKey)

	return value, s
}
