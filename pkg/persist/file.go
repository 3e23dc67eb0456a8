package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileBackend stores each key as a file in one directory. It is the
// default durable backend: values survive process restarts, and edits
// made by other processes are observable through Watch.
type FileBackend struct {
	dir string

	mu      sync.Mutex
	watches map[string][]*fileWatch
	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  bool
}

type fileWatch struct {
	fn   func([]byte)
	done bool
}

// DefaultDir returns the per-user state directory,
// os.UserConfigDir()/tether. It fails where the platform defines no
// user config location, which callers treat as a headless environment.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("persist: no user config dir: %w", err)
	}
	return filepath.Join(base, "tether"), nil
}

// NewFileBackend creates a backend rooted at dir, creating the
// directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create state dir: %w", err)
	}
	return &FileBackend{
		dir:     dir,
		watches: make(map[string][]*fileWatch),
		done:    make(chan struct{}),
	}, nil
}

// Dir returns the backend's root directory.
func (f *FileBackend) Dir() string {
	return f.dir
}

// filename maps a key to a flat file name. Anything that could escape
// the directory or upset a filesystem is replaced, so distinct keys can
// collide; key discipline is the caller's job.
func filename(key string) string {
	if key == "" {
		return "_"
	}
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name[0] == '.' {
		name = "_" + name[1:]
	}
	return name
}

func (f *FileBackend) path(key string) string {
	return filepath.Join(f.dir, filename(key))
}

// Read returns the file contents for key.
func (f *FileBackend) Read(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("persist: read %s: %w", key, err)
	}
	return data, nil
}

// Write stores data for key via a temp file and rename, so concurrent
// readers never observe a half-written value.
func (f *FileBackend) Write(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}

	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persist: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persist: write %s: %w", key, err)
	}
	return nil
}

// Delete removes the file for key.
func (f *FileBackend) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("persist: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys, i.e. the file names in the directory.
func (f *FileBackend) Keys(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("persist: list %s: %w", f.dir, err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		keys = append(keys, e.Name())
	}
	return keys, nil
}

// Watch reports external writes to key's file. The first watch starts a
// directory watcher shared by all keys on this backend.
func (f *FileBackend) Watch(key string, fn func(data []byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}

	if f.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("persist: start watcher: %w", err)
		}
		if err := w.Add(f.dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("persist: watch %s: %w", f.dir, err)
		}
		f.watcher = w
		go f.watchLoop(w)
	}

	name := filename(key)
	w := &fileWatch{fn: fn}
	f.watches[name] = append(f.watches[name], w)

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		if w.done {
			return
		}
		w.done = true
		list := f.watches[name]
		for i, have := range list {
			if have == w {
				f.watches[name] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}, nil
}

// watchLoop dispatches filesystem events to registered key watchers.
func (f *FileBackend) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasSuffix(name, ".tmp") {
				continue
			}
			f.dispatch(name)
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
			// Watcher errors are not actionable here; the next Read
			// still sees the file.
		case <-f.done:
			return
		}
	}
}

// dispatch reads the changed file and fans it out to that key's
// watchers. An unreadable file (mid-delete, permissions) is skipped;
// rename-into-place means the common case reads the complete value.
func (f *FileBackend) dispatch(name string) {
	f.mu.Lock()
	list := f.watches[name]
	watches := make([]*fileWatch, 0, len(list))
	for _, w := range list {
		if !w.done {
			watches = append(watches, w)
		}
	}
	f.mu.Unlock()

	if len(watches) == 0 {
		return
	}

	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		return
	}
	for _, w := range watches {
		w.fn(data)
	}
}

// Close stops the watcher. Files on disk are left as they are.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	close(f.done)
	if f.watcher != nil {
		f.watcher.Close()
		f.watcher = nil
	}
	f.watches = nil
	return nil
}
