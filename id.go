package tether

import "sync/atomic"

// globalIDCounter is the source of unique IDs for stores, scopes, and
// listener registrations. Atomic operations keep ID generation lock-free.
var globalIDCounter uint64

// nextID returns the next unique ID. IDs are monotonically increasing
// and never reused, which also makes them usable as render-trigger
// tokens: two distinct IDs are always distinguishable.
func nextID() uint64 {
	return atomic.AddUint64(&globalIDCounter, 1)
}
