package persist

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process backend. It backs the session-only
// persistence mode: values survive store re-construction within one
// process and vanish with it.
type MemoryBackend struct {
	mu      sync.RWMutex
	data    map[string][]byte
	watches map[string][]*memoryWatch
	closed  bool
}

type memoryWatch struct {
	fn   func([]byte)
	done bool
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:    make(map[string][]byte),
		watches: make(map[string][]*memoryWatch),
	}
}

var (
	sessionOnce    sync.Once
	sessionBackend *MemoryBackend
)

// Session returns the process-wide session backend. Stores configured
// with WithSession share it, which is what makes a value written by one
// store construction visible to the next within the same process.
func Session() *MemoryBackend {
	sessionOnce.Do(func() {
		sessionBackend = NewMemoryBackend()
	})
	return sessionBackend
}

// Read returns the stored bytes for key.
func (m *MemoryBackend) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write stores a copy of data under key and notifies watchers.
func (m *MemoryBackend) Write(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	m.data[key] = stored

	watches := m.snapshotWatches(key)
	m.mu.Unlock()

	for _, w := range watches {
		w.fn(stored)
	}
	return nil
}

// Delete removes key.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

// Keys lists all stored keys.
func (m *MemoryBackend) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Watch reports writes to key made through this backend by other
// holders of it.
func (m *MemoryBackend) Watch(key string, fn func(data []byte)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	w := &memoryWatch{fn: fn}
	m.watches[key] = append(m.watches[key], w)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if w.done {
			return
		}
		w.done = true
		list := m.watches[key]
		for i, have := range list {
			if have == w {
				m.watches[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}, nil
}

// snapshotWatches copies the live watchers for key. Callers hold m.mu.
func (m *MemoryBackend) snapshotWatches(key string) []*memoryWatch {
	list := m.watches[key]
	out := make([]*memoryWatch, 0, len(list))
	for _, w := range list {
		if !w.done {
			out = append(out, w)
		}
	}
	return out
}

// Close marks the backend closed and drops its contents.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.data = nil
	m.watches = nil
	return nil
}
