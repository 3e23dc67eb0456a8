package tether

import (
	"runtime"
	"sync"
)

// trackingContext holds the runtime state for a goroutine. Each
// goroutine gets its own context so concurrent renders never observe
// each other's scope.
type trackingContext struct {
	// currentScope is the Scope whose hook slots are active. Set for
	// the duration of a render, effect flush, or event handler.
	currentScope *Scope

	// currentHost carries the hosting runtime (a live session, a test
	// harness) so host-level hooks can reach it. Stored as any to avoid
	// a circular import with the host packages.
	currentHost any
}

// trackingContexts maps goroutine ID to its trackingContext.
var trackingContexts sync.Map

// goroutineID extracts the current goroutine's ID from a stack header.
// This is an implementation detail and must not leak into the API.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	// The header reads "goroutine <id> [...". Parse digits after the
	// fixed prefix.
	var id uint64
	for i := 10; i < n; i++ {
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

func getTrackingContext() *trackingContext {
	gid := goroutineID()

	if tc, ok := trackingContexts.Load(gid); ok {
		return tc.(*trackingContext)
	}

	tc := &trackingContext{}
	trackingContexts.Store(gid, tc)
	return tc
}

func currentScope() *Scope {
	return getTrackingContext().currentScope
}

// setCurrentScope installs s as the active scope for this goroutine and
// returns the previous one so it can be restored.
func setCurrentScope(s *Scope) *Scope {
	tc := getTrackingContext()
	old := tc.currentScope
	tc.currentScope = s
	return old
}

// WithScope runs fn with s as the active scope. Hosts use it to bracket
// renders, effect flushes, and event handlers; it also lets a spawned
// goroutine adopt the scope of the component that started it.
func WithScope(s *Scope, fn func()) {
	old := setCurrentScope(s)
	defer setCurrentScope(old)
	fn()
}

// CurrentHost returns the hosting runtime installed for this goroutine,
// or nil outside a hosted call.
func CurrentHost() any {
	return getTrackingContext().currentHost
}

// WithHost runs fn with host as the goroutine's hosting runtime.
func WithHost(host any, fn func()) {
	tc := getTrackingContext()
	old := tc.currentHost
	tc.currentHost = host
	defer func() { tc.currentHost = old }()
	fn()
}

// releaseTrackingContext drops the current goroutine's context. Hosts
// call it when a long-lived worker goroutine exits; short-lived
// goroutines may skip it, the entry is small and gets overwritten if
// the ID is reused.
func releaseTrackingContext() {
	trackingContexts.Delete(goroutineID())
}
