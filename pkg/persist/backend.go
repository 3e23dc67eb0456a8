package persist

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Backend.Read when the key has never been
// written. Persistent treats it as "use the initial value", not as a
// failure.
var ErrNotFound = errors.New("persist: key not found")

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("persist: backend closed")

// Backend is the durable medium behind a persistent store: a flat
// key-to-bytes mapping. Implementations must be safe for concurrent
// use.
//
// Key collisions between stores sharing a backend are the caller's
// responsibility to avoid; the backend itself treats keys as opaque.
type Backend interface {
	// Read returns the encoded value for key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write replaces the encoded value for key.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources. Backends wrapping a shared
	// handle (a *sql.DB, a Redis client owned elsewhere) only mark
	// themselves closed.
	Close() error
}

// Watcher is implemented by backends that can report external writes
// to a key, such as another process editing a state file. Persistent
// uses it to pick up cross-process changes.
type Watcher interface {
	// Watch invokes fn with the new encoded value whenever key changes
	// behind the caller's back. The returned stop function cancels the
	// watch and is safe to call more than once.
	Watch(key string, fn func(data []byte)) (stop func(), err error)
}

// Lister is implemented by backends that can enumerate their keys.
// Tooling uses it; Persistent itself never does.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}
