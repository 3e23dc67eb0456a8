package tether

import (
	"sync"
	"testing"
)

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []*Scope
}

func (r *recordingScheduler) ScheduleRender(s *Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, s)
}

func (r *recordingScheduler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scheduled)
}

func TestScopeMarkDirtyCoalesces(t *testing.T) {
	sched := &recordingScheduler{}
	s := NewScope(nil, sched)

	s.MarkDirty()
	s.MarkDirty()
	s.MarkDirty()

	if got := sched.count(); got != 1 {
		t.Errorf("scheduler notified %d times, want 1", got)
	}

	if !s.ClearDirty() {
		t.Error("ClearDirty() = false on a dirty scope")
	}
	if s.ClearDirty() {
		t.Error("ClearDirty() = true on a clean scope")
	}

	// The flag re-arms after being cleared.
	s.MarkDirty()
	if got := sched.count(); got != 2 {
		t.Errorf("scheduler notified %d times after re-arm, want 2", got)
	}
}

func TestScopeChildInheritsScheduler(t *testing.T) {
	sched := &recordingScheduler{}
	root := NewScope(nil, sched)
	child := NewScope(root, nil)

	child.MarkDirty()

	if got := sched.count(); got != 1 {
		t.Errorf("scheduler notified %d times for child, want 1", got)
	}
	if len(sched.scheduled) == 1 && sched.scheduled[0] != child {
		t.Error("scheduler received a scope other than the dirty child")
	}
}

func TestScopeValueLookupWalksParents(t *testing.T) {
	type key struct{ name string }
	k := key{"shared"}

	root := NewScope(nil, nil)
	mid := NewScope(root, nil)
	leaf := NewScope(mid, nil)

	root.SetValue(k, "from-root")
	if got := leaf.Value(k); got != "from-root" {
		t.Errorf("leaf.Value = %v, want from-root", got)
	}

	// A nearer scope shadows the ancestor.
	mid.SetValue(k, "from-mid")
	if got := leaf.Value(k); got != "from-mid" {
		t.Errorf("leaf.Value after shadow = %v, want from-mid", got)
	}
	if got := root.Value(k); got != "from-root" {
		t.Errorf("root.Value = %v, want from-root", got)
	}

	if got := leaf.Value(key{"missing"}); got != nil {
		t.Errorf("missing key = %v, want nil", got)
	}
}

func TestScopeDisposeCascades(t *testing.T) {
	var order []string

	root := NewScope(nil, nil)
	child1 := NewScope(root, nil)
	child2 := NewScope(root, nil)
	grand := NewScope(child2, nil)

	root.OnCleanup(func() { order = append(order, "root") })
	child1.OnCleanup(func() { order = append(order, "child1") })
	child2.OnCleanup(func() { order = append(order, "child2") })
	grand.OnCleanup(func() { order = append(order, "grand") })

	root.Dispose()

	// Children go down before their parent, last-created first, and
	// each subtree bottoms out before its root runs cleanups.
	want := []string{"grand", "child2", "child1", "root"}
	if len(order) != len(want) {
		t.Fatalf("cleanup order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("cleanup order = %v, want %v", order, want)
		}
	}

	if !root.IsDisposed() || !grand.IsDisposed() {
		t.Error("scopes not marked disposed")
	}
}

func TestScopeDisposedIgnoresDirty(t *testing.T) {
	sched := &recordingScheduler{}
	s := NewScope(nil, sched)
	s.Dispose()

	s.MarkDirty()
	if got := sched.count(); got != 0 {
		t.Errorf("disposed scope notified scheduler %d times, want 0", got)
	}
}

func TestScopeOnCleanupAfterDisposeRunsImmediately(t *testing.T) {
	s := NewScope(nil, nil)
	s.Dispose()

	ran := false
	s.OnCleanup(func() { ran = true })
	if !ran {
		t.Error("cleanup registered after dispose did not run immediately")
	}
}

func TestScopeFlushEffectsReachesChildren(t *testing.T) {
	root := NewScope(nil, nil)
	child := NewScope(root, nil)

	ran := 0
	WithScope(child, func() {
		child.StartRender()
		UseEffect(func() Cleanup {
			ran++
			return nil
		}, "once")
		child.EndRender()
	})

	if !root.HasPendingEffects() {
		t.Fatal("root does not see the child's pending effect")
	}

	root.FlushEffects()
	if ran != 1 {
		t.Errorf("child effect ran %d times, want 1", ran)
	}
	if root.HasPendingEffects() {
		t.Error("pending effects remain after flush")
	}
}

func TestGoroutineIDStable(t *testing.T) {
	a := goroutineID()
	b := goroutineID()
	if a != b {
		t.Errorf("goroutineID changed within one goroutine: %d then %d", a, b)
	}

	done := make(chan uint64, 1)
	go func() { done <- goroutineID() }()
	if other := <-done; other == a {
		t.Error("two goroutines reported the same ID")
	}
}

func TestWithScopeRestoresPrevious(t *testing.T) {
	outer := NewScope(nil, nil)
	inner := NewScope(outer, nil)

	WithScope(outer, func() {
		if currentScope() != outer {
			t.Error("outer scope not installed")
		}
		WithScope(inner, func() {
			if currentScope() != inner {
				t.Error("inner scope not installed")
			}
		})
		if currentScope() != outer {
			t.Error("outer scope not restored after nested WithScope")
		}
	})

	if currentScope() != nil {
		t.Error("scope not cleared after WithScope")
	}
}
