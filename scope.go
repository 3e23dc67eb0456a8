package tether

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DebugMode enables dev-time validation such as hook order checking.
// Hosts turn it on for development builds; it defaults to off because
// the checks add per-hook bookkeeping.
var DebugMode = false

// RenderScheduler is implemented by hosts that can re-render a scope.
// MarkDirty hands the scope to the scheduler; the host decides when the
// render actually happens and how many dirty marks coalesce into one.
type RenderScheduler interface {
	ScheduleRender(*Scope)
}

// Cleanup undoes whatever an effect set up. Effects return nil when
// there is nothing to undo.
type Cleanup func()

// HookType identifies the kind of hook call for order validation.
type HookType uint8

const (
	HookState HookType = iota + 1
	HookRef
	HookMemo
	HookEffect
	HookAction
)

// String returns a human-readable name for the hook type.
func (h HookType) String() string {
	switch h {
	case HookState:
		return "State"
	case HookRef:
		return "Ref"
	case HookMemo:
		return "Memo"
	case HookEffect:
		return "Effect"
	case HookAction:
		return "Action"
	default:
		return "Unknown"
	}
}

// Scope owns the hook state of one component instance. Hook slots give
// each UseState, UseRef, UseMemo, and UseEffect call a stable cell
// across renders, keyed by call order. Disposing a scope runs its
// cleanups and disposes its children, so unmounting a component tears
// down everything it set up.
//
// Scopes form a hierarchy mirroring the component tree; the root scope
// belongs to the host (a session or a test harness).
type Scope struct {
	id uint64

	// parent is nil for a root scope.
	parent *Scope

	children   []*Scope
	childrenMu sync.Mutex

	// cleanups registered via OnCleanup, run in reverse on Dispose.
	cleanups   []func()
	cleanupsMu sync.Mutex

	// pendingEffects queue up during render and run when the host calls
	// FlushEffects after commit.
	pendingEffects   []*effectCell
	pendingEffectsMu sync.Mutex

	// values holds scope-local context values, looked up through
	// parents like context.Context.
	values   map[any]any
	valuesMu sync.RWMutex

	disposed atomic.Bool

	// dirty is set when hook state changes and cleared by the host just
	// before it re-renders. The flag coalesces any number of writes
	// between renders into a single re-render.
	dirty atomic.Bool

	// sched receives this scope when it becomes dirty. Inherited from
	// the parent so a write anywhere in the tree reaches the host.
	sched RenderScheduler

	// Dev-mode hook order tracking (DebugMode only).
	hookOrder   []HookType
	hookIndex   int
	renderCount int

	// Hook slot storage for stable identity across renders.
	hookSlots   []any
	hookSlotIdx int
}

// NewScope creates a scope under parent. A nil parent makes a root
// scope; sched may be nil for hosts that poll Dirty instead.
func NewScope(parent *Scope, sched RenderScheduler) *Scope {
	s := &Scope{
		id:     nextID(),
		parent: parent,
		sched:  sched,
	}

	if parent != nil {
		if s.sched == nil {
			s.sched = parent.sched
		}
		parent.addChild(s)
	}

	return s
}

// ID returns the unique identifier for this scope.
func (s *Scope) ID() uint64 {
	return s.id
}

// Parent returns the parent scope, or nil for a root scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// IsDisposed reports whether Dispose has run.
func (s *Scope) IsDisposed() bool {
	return s.disposed.Load()
}

func (s *Scope) addChild(child *Scope) {
	s.childrenMu.Lock()
	defer s.childrenMu.Unlock()
	s.children = append(s.children, child)
}

func (s *Scope) removeChild(child *Scope) {
	s.childrenMu.Lock()
	defer s.childrenMu.Unlock()

	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// OnCleanup registers fn to run when this scope is disposed. On an
// already-disposed scope the function runs immediately.
func (s *Scope) OnCleanup(fn func()) {
	if s.disposed.Load() {
		fn()
		return
	}

	s.cleanupsMu.Lock()
	defer s.cleanupsMu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

// MarkDirty flags the scope for re-render and notifies the scheduler.
// Only the first mark between renders reaches the scheduler; further
// marks are absorbed by the flag.
func (s *Scope) MarkDirty() {
	if s.disposed.Load() {
		return
	}
	if s.dirty.CompareAndSwap(false, true) {
		if s.sched != nil {
			s.sched.ScheduleRender(s)
		}
	}
}

// ClearDirty consumes the dirty flag. The host calls it immediately
// before rendering so writes landing during the render re-flag the
// scope instead of being lost.
func (s *Scope) ClearDirty() bool {
	return s.dirty.CompareAndSwap(true, false)
}

// Dirty reports whether a re-render is pending.
func (s *Scope) Dirty() bool {
	return s.dirty.Load()
}

// scheduleEffect queues an effect cell to run at the next FlushEffects.
func (s *Scope) scheduleEffect(e *effectCell) {
	if s.disposed.Load() {
		return
	}

	s.pendingEffectsMu.Lock()
	defer s.pendingEffectsMu.Unlock()
	s.pendingEffects = append(s.pendingEffects, e)
}

// FlushEffects runs every queued effect on this scope and its children.
// The host calls it after the rendered output has been committed, never
// during render.
func (s *Scope) FlushEffects() {
	if s.disposed.Load() {
		return
	}

	s.pendingEffectsMu.Lock()
	effects := s.pendingEffects
	s.pendingEffects = nil
	s.pendingEffectsMu.Unlock()

	for _, e := range effects {
		if e.pending.CompareAndSwap(true, false) {
			e.run()
		}
	}

	s.childrenMu.Lock()
	children := make([]*Scope, len(s.children))
	copy(children, s.children)
	s.childrenMu.Unlock()

	for _, child := range children {
		child.FlushEffects()
	}
}

// HasPendingEffects reports whether this scope or any child has effects
// waiting for FlushEffects.
func (s *Scope) HasPendingEffects() bool {
	if s.disposed.Load() {
		return false
	}

	s.pendingEffectsMu.Lock()
	pending := len(s.pendingEffects) > 0
	s.pendingEffectsMu.Unlock()

	if pending {
		return true
	}

	s.childrenMu.Lock()
	children := make([]*Scope, len(s.children))
	copy(children, s.children)
	s.childrenMu.Unlock()

	for _, child := range children {
		if child.HasPendingEffects() {
			return true
		}
	}

	return false
}

// Dispose tears the scope down: children first (in reverse creation
// order), then effect cleanups and OnCleanup functions, also in
// reverse. After Dispose the scope ignores MarkDirty and scheduling.
func (s *Scope) Dispose() {
	if s.disposed.Swap(true) {
		return
	}

	if s.parent != nil {
		s.parent.removeChild(s)
	}

	s.childrenMu.Lock()
	children := make([]*Scope, len(s.children))
	copy(children, s.children)
	s.children = nil
	s.childrenMu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}

	// Run hook effect cleanups before manual cleanups so listener
	// unsubscription happens while the rest of the scope is intact.
	for _, slot := range s.hookSlots {
		if e, ok := slot.(*effectCell); ok {
			e.dispose()
		}
	}

	s.cleanupsMu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.cleanupsMu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	s.pendingEffectsMu.Lock()
	s.pendingEffects = nil
	s.pendingEffectsMu.Unlock()
}

// SetValue stores a scope-local context value for this scope and its
// descendants.
func (s *Scope) SetValue(key, value any) {
	s.valuesMu.Lock()
	defer s.valuesMu.Unlock()

	if s.values == nil {
		s.values = make(map[any]any)
	}
	s.values[key] = value
}

// Value looks key up on this scope, then on its ancestors. Returns nil
// when no scope in the chain has the key.
func (s *Scope) Value(key any) any {
	s.valuesMu.RLock()
	if s.values != nil {
		if v, ok := s.values[key]; ok {
			s.valuesMu.RUnlock()
			return v
		}
	}
	s.valuesMu.RUnlock()

	if s.parent != nil {
		return s.parent.Value(key)
	}

	return nil
}

// StartRender resets the hook slot cursor. The host brackets every
// component render with StartRender and EndRender.
func (s *Scope) StartRender() {
	s.hookSlotIdx = 0

	if DebugMode {
		s.hookIndex = 0
	}
}

// EndRender finishes a render. In debug mode it verifies that the
// render used every hook recorded on the first render.
func (s *Scope) EndRender() {
	if !DebugMode {
		return
	}
	if s.renderCount == 0 {
		s.renderCount = 1
	} else if s.hookIndex < len(s.hookOrder) {
		panic(fmt.Sprintf("[TETHER E002] Hook order changed: expected %d hooks, got %d",
			len(s.hookOrder), s.hookIndex))
	}
}

// TrackHook records a hook call for order validation. The first render
// fixes the expected sequence; later renders must repeat it exactly.
func (s *Scope) TrackHook(ht HookType) {
	if !DebugMode {
		return
	}

	if s.renderCount == 0 {
		s.hookOrder = append(s.hookOrder, ht)
	} else {
		if s.hookIndex >= len(s.hookOrder) {
			panic(fmt.Sprintf("[TETHER E002] Hook order changed: extra %s hook at index %d",
				ht, s.hookIndex))
		}
		if expected := s.hookOrder[s.hookIndex]; expected != ht {
			panic(fmt.Sprintf("[TETHER E002] Hook order changed at index %d: expected %s, got %s",
				s.hookIndex, expected, ht))
		}
	}
	s.hookIndex++
}

// UseHookSlot returns the stored value for the current hook slot, or
// nil on the slot's first render. Callers create their cell on nil and
// store it with SetHookSlot, which is what gives hooks stable identity
// across renders.
func (s *Scope) UseHookSlot() any {
	idx := s.hookSlotIdx
	s.hookSlotIdx++

	if idx < len(s.hookSlots) {
		return s.hookSlots[idx]
	}

	return nil
}

// SetHookSlot stores a freshly created cell in the slot that UseHookSlot
// just returned nil for.
func (s *Scope) SetHookSlot(value any) {
	s.hookSlots = append(s.hookSlots, value)
}
