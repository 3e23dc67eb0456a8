package ttest

import (
	"strings"
	"testing"

	"github.com/tether-go/tether"
)

// Mounted is a component mounted under a test scope. It exposes the
// render and effect phases separately so tests can interleave store
// writes at exact points in the lifecycle.
type Mounted struct {
	scope     *tether.Scope
	component func() string
	renders   int
	html      string
	unmounted bool
}

// Option configures a Mount.
type Option func(*Mounted)

// WithValue seeds a scope value before the first render, the way a
// host session installs its store registry.
//
// Example:
//
//	stores := tether.NewStores()
//	m := ttest.Mount(Counter, ttest.WithValue(tether.StoresKey, stores))
func WithValue(key, val any) Option {
	return func(m *Mounted) {
		m.scope.SetValue(key, val)
	}
}

// Mount renders the component once and returns a handle to it. Effects
// do NOT run yet; call RunEffects or Settle to commit the mount. The
// gap between Mount and RunEffects is exactly the window where a store
// write can race the first display, so tests that need that window
// write into it deliberately:
//
//	m := ttest.Mount(Counter)
//	count.Set(5)        // lands before the subscription exists
//	m.RunEffects()      // subscription attaches, mount commits
//	m.Settle()          // the missed write is caught up here
func Mount(component func() string, opts ...Option) *Mounted {
	m := &Mounted{
		scope:     tether.NewScope(nil, nil),
		component: component,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.render()
	return m
}

// MountAndSettle mounts the component and drives it to quiescence in
// one call. Most tests want this.
func MountAndSettle(component func() string, opts ...Option) *Mounted {
	m := Mount(component, opts...)
	m.Settle()
	return m
}

// render runs one render pass without flushing effects.
func (m *Mounted) render() {
	m.renders++
	m.scope.ClearDirty()
	tether.WithScope(m.scope, func() {
		m.scope.StartRender()
		m.html = m.component()
		m.scope.EndRender()
	})
}

// RunEffects flushes the effects queued by the last render pass.
func (m *Mounted) RunEffects() {
	m.scope.FlushEffects()
}

// Settle drives the component to quiescence: effects run, then any
// resulting dirtiness re-renders, until neither remains. Returns the
// number of render passes performed. Panics after 25 passes, which
// means the component re-dirties itself on every render.
func (m *Mounted) Settle() int {
	n := 0
	for {
		if m.scope.HasPendingEffects() {
			m.scope.FlushEffects()
		}
		if !m.scope.Dirty() {
			return n
		}
		m.render()
		n++
		if n > 25 {
			panic("ttest: component does not settle")
		}
	}
}

// Rerender forces one render pass regardless of dirtiness, without
// running effects. Use it to test the render side of the lifecycle in
// isolation.
func (m *Mounted) Rerender() {
	m.render()
}

// HTML returns the output of the most recent render.
func (m *Mounted) HTML() string {
	return m.html
}

// Renders returns the number of render passes so far, including the
// mount.
func (m *Mounted) Renders() int {
	return m.renders
}

// Dirty reports whether a store write has scheduled a re-render that
// has not happened yet.
func (m *Mounted) Dirty() bool {
	return m.scope.Dirty()
}

// Scope returns the backing scope for tests that need direct access.
func (m *Mounted) Scope() *tether.Scope {
	return m.scope
}

// Unmount disposes the component, running effect cleanups. Safe to
// call twice.
func (m *Mounted) Unmount() {
	if m.unmounted {
		return
	}
	m.unmounted = true
	m.scope.Dispose()
}

// ExpectContains asserts that the last rendered output contains the
// expected substring.
//
// Example:
//
//	m := ttest.MountAndSettle(Counter)
//	ttest.ExpectContains(t, m, "Count: 0")
func ExpectContains(t testing.TB, m *Mounted, expected string) {
	t.Helper()
	if !strings.Contains(m.html, expected) {
		t.Errorf("expected rendered output to contain %q, got:\n%s", expected, truncate(m.html, 500))
	}
}

// ExpectNotContains asserts that the last rendered output does not
// contain the substring.
func ExpectNotContains(t testing.TB, m *Mounted, unexpected string) {
	t.Helper()
	if strings.Contains(m.html, unexpected) {
		t.Errorf("expected rendered output to NOT contain %q, got:\n%s", unexpected, truncate(m.html, 500))
	}
}

// ExpectRenders asserts the total number of render passes, catching
// both missed updates (too few) and redundant re-renders (too many).
func ExpectRenders(t testing.TB, m *Mounted, want int) {
	t.Helper()
	if m.renders != want {
		t.Errorf("render passes = %d, want %d", m.renders, want)
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
