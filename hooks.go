package tether

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// mustScope returns the active scope or panics. Hooks are only valid
// during a render bracketed by StartRender/EndRender on some scope.
func mustScope(hook string) *Scope {
	sc := currentScope()
	if sc == nil {
		panic(fmt.Sprintf("[TETHER E001] %s called outside a component render", hook))
	}
	return sc
}

// stateCell is the hook slot behind UseState. The setter closure is
// created once so its identity is stable across renders.
type stateCell[T any] struct {
	scope *Scope

	mu    sync.Mutex
	value T
}

func (c *stateCell[T]) get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// set stores v and marks the owning scope dirty when the value
// actually changed. Safe to call from any goroutine.
func (c *stateCell[T]) set(v T) {
	c.mu.Lock()
	changed := !defaultEquals(c.value, v)
	if changed {
		c.value = v
	}
	c.mu.Unlock()

	if changed {
		c.scope.MarkDirty()
	}
}

// UseState returns a render-stable state cell as a (value, setter)
// pair. The initial value only matters on the slot's first render.
// Calling the setter with a different value marks the scope dirty; the
// host coalesces however many set calls land before the next render
// into one re-render.
func UseState[T any](initial T) (T, func(T)) {
	sc := mustScope("UseState")
	sc.TrackHook(HookState)

	if slot := sc.UseHookSlot(); slot != nil {
		cell, ok := slot.(*stateCell[T])
		if !ok {
			panic("tether: hook slot type mismatch for UseState")
		}
		return cell.get(), cell.set
	}

	cell := &stateCell[T]{scope: sc, value: initial}
	sc.SetHookSlot(cell)
	return initial, cell.set
}

// Ref holds a mutable value that survives re-renders without causing
// them. Writing a Ref never marks the scope dirty.
type Ref[T any] struct {
	mu    sync.RWMutex
	value T
}

// Current returns the ref's value.
func (r *Ref[T]) Current() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Set replaces the ref's value.
func (r *Ref[T]) Set(value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = value
}

// UseRef returns a render-stable Ref. The initial value only matters on
// the slot's first render.
func UseRef[T any](initial T) *Ref[T] {
	sc := mustScope("UseRef")
	sc.TrackHook(HookRef)

	if slot := sc.UseHookSlot(); slot != nil {
		ref, ok := slot.(*Ref[T])
		if !ok {
			panic("tether: hook slot type mismatch for UseRef")
		}
		return ref
	}

	ref := &Ref[T]{value: initial}
	sc.SetHookSlot(ref)
	return ref
}

// memoCell is the hook slot behind UseMemo.
type memoCell[T any] struct {
	value T
	deps  []any
}

// UseMemo returns compute() memoized on deps: the function re-runs only
// on the first render and when deps differ from the previous render.
func UseMemo[T any](compute func() T, deps ...any) T {
	sc := mustScope("UseMemo")
	sc.TrackHook(HookMemo)

	if slot := sc.UseHookSlot(); slot != nil {
		cell, ok := slot.(*memoCell[T])
		if !ok {
			panic("tether: hook slot type mismatch for UseMemo")
		}
		if !depsEqual(cell.deps, deps) {
			cell.value = compute()
			cell.deps = deps
		}
		return cell.value
	}

	cell := &memoCell[T]{value: compute(), deps: deps}
	sc.SetHookSlot(cell)
	return cell.value
}

// effectCell is the hook slot behind UseEffect. It keeps the latest
// effect closure and the cleanup from the last run.
type effectCell struct {
	scope *Scope

	mu      sync.Mutex
	fn      func() Cleanup
	cleanup Cleanup
	deps    []any

	// pending is set while the cell sits in the scope's effect queue.
	pending  atomic.Bool
	disposed atomic.Bool
}

// run executes the effect: previous cleanup first, then the latest
// closure, whose cleanup is kept for the next run or disposal.
func (e *effectCell) run() {
	if e.disposed.Load() {
		return
	}

	e.mu.Lock()
	cleanup := e.cleanup
	e.cleanup = nil
	fn := e.fn
	e.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}

	next := fn()

	e.mu.Lock()
	e.cleanup = next
	e.mu.Unlock()
}

// dispose runs the outstanding cleanup. Called when the owning scope
// is disposed.
func (e *effectCell) dispose() {
	if e.disposed.Swap(true) {
		return
	}

	e.mu.Lock()
	cleanup := e.cleanup
	e.cleanup = nil
	e.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
}

func (e *effectCell) schedule() {
	if e.pending.CompareAndSwap(false, true) {
		e.scope.scheduleEffect(e)
	}
}

// UseEffect schedules fn to run after the rendered output has been
// committed, on the first render and again whenever deps differ from
// the previous render. fn may return a Cleanup, which runs before the
// next execution and when the scope is disposed. The closure itself is
// refreshed every render so it never sees stale captures.
//
// With no deps the effect runs after every render; to run exactly once
// pass a constant dep.
func UseEffect(fn func() Cleanup, deps ...any) {
	sc := mustScope("UseEffect")
	sc.TrackHook(HookEffect)

	if slot := sc.UseHookSlot(); slot != nil {
		cell, ok := slot.(*effectCell)
		if !ok {
			panic("tether: hook slot type mismatch for UseEffect")
		}
		cell.mu.Lock()
		cell.fn = fn
		changed := len(deps) == 0 || !depsEqual(cell.deps, deps)
		if changed {
			cell.deps = deps
		}
		cell.mu.Unlock()
		if changed {
			cell.schedule()
		}
		return
	}

	cell := &effectCell{scope: sc, fn: fn, deps: deps}
	sc.SetHookSlot(cell)
	cell.schedule()
}

// OnCleanup registers fn to run when the current component's scope is
// disposed. It is the hook form of Scope.OnCleanup.
func OnCleanup(fn func()) {
	mustScope("OnCleanup").OnCleanup(fn)
}

// defaultEquals provides type-appropriate equality checking. Uses ==
// for the common comparable types and reflect.DeepEqual for the rest.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		return av == any(b).(int)
	case int8:
		return av == any(b).(int8)
	case int16:
		return av == any(b).(int16)
	case int32:
		return av == any(b).(int32)
	case int64:
		return av == any(b).(int64)
	case uint:
		return av == any(b).(uint)
	case uint8:
		return av == any(b).(uint8)
	case uint16:
		return av == any(b).(uint16)
	case uint32:
		return av == any(b).(uint32)
	case uint64:
		return av == any(b).(uint64)
	case float32:
		return av == any(b).(float32)
	case float64:
		return av == any(b).(float64)
	case string:
		return av == any(b).(string)
	case bool:
		return av == any(b).(bool)
	default:
		return reflect.DeepEqual(a, b)
	}
}

// depsEqual compares two dependency lists element-wise. Comparable
// values compare with ==, so two distinct stores with equal contents
// still count as different dependencies; everything else falls back to
// reflect.DeepEqual.
func depsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !depEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func depEqual(x, y any) bool {
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	tx, ty := reflect.TypeOf(x), reflect.TypeOf(y)
	if tx != ty {
		return false
	}
	if tx.Comparable() {
		return x == y
	}
	return reflect.DeepEqual(x, y)
}
