package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tether-go/tether"
)

// Persistent wraps a store with best-effort durability. Reads and
// writes hit the in-memory store exactly like a plain one; after every
// write the encoded value is handed to a background writer, so a slow
// or broken backend can never stall the write path or its synchronous
// notification.
//
// All persistence failures are non-fatal: they go to the error handler
// or the log, and the in-memory value stays authoritative. A store
// constructed in an environment with no usable backend degrades to
// plain in-memory behavior silently.
type Persistent[T any] struct {
	store *tether.Store[T]
	key   string

	backend Backend
	// ownsBackend is set when the store built its default file backend
	// itself; supplied and session backends belong to their owners.
	ownsBackend bool

	encode func(any) ([]byte, error)
	decode func([]byte, any) error

	onError      func(error)
	logger       *slog.Logger
	writeTimeout time.Duration

	// pending holds the most recent encoded value not yet written.
	// Intermediate values are superseded, not queued: durability only
	// ever needs the latest.
	mu      sync.Mutex
	pending []byte

	wake    chan struct{}
	flushCh chan chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool

	watchOnce sync.Once
	stopWatch func()
}

// New constructs a persistent store for key. The backend is read once,
// synchronously: a stored value that decodes cleanly becomes the
// store's value, anything else (absent key, read error, decode error)
// falls back to initial. Read and decode errors are reported on the
// side channel; an absent key is not an error.
//
// Without options the value is stored as JSON in a per-user state
// directory; see WithBackend, WithSession, and WithCodec.
func New[T any](initial T, key string, opts ...Option) *Persistent[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	p := &Persistent[T]{
		key:          key,
		encode:       cfg.encode,
		decode:       cfg.decode,
		onError:      cfg.onError,
		logger:       cfg.logger.With("key", key),
		writeTimeout: cfg.writeTimeout,
		wake:         make(chan struct{}, 1),
		flushCh:      make(chan chan struct{}),
		done:         make(chan struct{}),
	}

	switch {
	case cfg.backend != nil:
		p.backend = cfg.backend
	case cfg.session:
		p.backend = Session()
	default:
		dir, err := DefaultDir()
		if err == nil {
			var fb *FileBackend
			fb, err = NewFileBackend(dir)
			if err == nil {
				p.backend = fb
				p.ownsBackend = true
			}
		}
		if err != nil {
			// Headless environment: no state directory, no durability.
			p.logger.Debug("no durable medium, state is in-memory only", "error", err)
		}
	}

	value := initial
	if p.backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		data, err := p.backend.Read(ctx, key)
		cancel()

		switch {
		case errors.Is(err, ErrNotFound):
			// First run for this key.
		case err != nil:
			p.report(fmt.Errorf("persist: read %q: %w", key, err))
		default:
			var stored T
			if derr := p.decode(data, &stored); derr != nil {
				p.report(fmt.Errorf("persist: decode %q: %w", key, derr))
			} else {
				value = stored
			}
		}
	}

	p.store = tether.New(value)

	if p.backend != nil {
		p.wg.Add(1)
		go p.writeLoop()
	}

	return p
}

// Get returns the current in-memory value.
func (p *Persistent[T]) Get() T {
	return p.store.Get()
}

// Set writes the value to the in-memory store, notifying listeners
// synchronously, then queues the encoded value for the backend.
func (p *Persistent[T]) Set(next T) {
	p.store.Set(next)
	p.persist()
}

// Update is the updater-function form of Set.
func (p *Persistent[T]) Update(fn func(T) T) {
	p.store.Update(fn)
	p.persist()
}

// Revision returns the underlying store's revision.
func (p *Persistent[T]) Revision() uint64 {
	return p.store.Revision()
}

// ID returns the underlying store's identifier.
func (p *Persistent[T]) ID() uint64 {
	return p.store.ID()
}

// Key returns the durable-storage key.
func (p *Persistent[T]) Key() string {
	return p.key
}

// OnUpdate registers fn for value transitions, external ingests
// included.
func (p *Persistent[T]) OnUpdate(fn func(tether.Change[T])) tether.Unsubscribe {
	return p.store.OnUpdate(fn)
}

// OnEffect registers fn for the effect event.
func (p *Persistent[T]) OnEffect(fn func()) tether.Unsubscribe {
	return p.store.OnEffect(fn)
}

// Emit forwards to the underlying store. The first effect event also
// attaches the external-change watcher: until something actually
// displays the value there is no reader to keep current, so the watch
// is not worth its file handle.
func (p *Persistent[T]) Emit(ev tether.Event) {
	if ev == tether.EventEffect && !p.closed.Load() {
		p.watchOnce.Do(p.startWatch)
	}
	p.store.Emit(ev)
}

// persist encodes the current value and hands it to the write loop.
// Never blocks: the wake channel has one slot and a pending wake covers
// any number of queued values.
func (p *Persistent[T]) persist() {
	if p.backend == nil || p.closed.Load() {
		return
	}

	data, err := p.encode(p.store.Get())
	if err != nil {
		p.report(fmt.Errorf("persist: encode %q: %w", p.key, err))
		return
	}

	p.mu.Lock()
	p.pending = data
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Persistent[T]) writeLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.wake:
			p.drain()
		case ack := <-p.flushCh:
			p.drain()
			close(ack)
		case <-p.done:
			p.drain()
			return
		}
	}
}

// drain writes queued values until none remain. Each write gets its
// own timeout so one hung backend call cannot wedge the loop forever.
func (p *Persistent[T]) drain() {
	for {
		p.mu.Lock()
		data := p.pending
		p.pending = nil
		p.mu.Unlock()

		if data == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		err := p.backend.Write(ctx, p.key, data)
		cancel()
		if err != nil {
			p.report(fmt.Errorf("persist: write %q: %w", p.key, err))
		}
	}
}

// Flush blocks until every queued write has been attempted. Tests and
// graceful shutdown use it; ordinary code never needs to.
func (p *Persistent[T]) Flush() {
	if p.backend == nil || p.closed.Load() {
		return
	}

	ack := make(chan struct{})
	select {
	case p.flushCh <- ack:
		<-ack
	case <-p.done:
	}
}

// Close stops the write loop after a final drain and detaches the
// watcher. The in-memory store keeps working; only durability stops.
// A backend the store built itself is closed, supplied ones are not.
func (p *Persistent[T]) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	stop := p.stopWatch
	p.stopWatch = nil
	p.mu.Unlock()
	if stop != nil {
		stop()
	}

	if p.backend == nil {
		return nil
	}

	close(p.done)
	p.wg.Wait()

	if p.ownsBackend {
		return p.backend.Close()
	}
	return nil
}

// startWatch attaches the external-change watcher on backends that
// support one.
func (p *Persistent[T]) startWatch() {
	w, ok := p.backend.(Watcher)
	if !ok {
		return
	}

	stop, err := w.Watch(p.key, p.onExternalChange)
	if err != nil {
		p.report(fmt.Errorf("persist: watch %q: %w", p.key, err))
		return
	}

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		stop()
		return
	}
	p.stopWatch = stop
	p.mu.Unlock()
}

// onExternalChange ingests a value written behind the store's back.
// The store's own writes echo back through the watcher (the backend
// cannot tell writers apart), so a decoded value equal to the current
// one is dropped here, before it ever reaches Set.
func (p *Persistent[T]) onExternalChange(data []byte) {
	if p.closed.Load() {
		return
	}

	var next T
	if err := p.decode(data, &next); err != nil {
		p.report(fmt.Errorf("persist: decode external %q: %w", p.key, err))
		return
	}

	if reflect.DeepEqual(next, p.store.Get()) {
		return
	}

	// Straight to the inner store: routing through Set would write the
	// ingested value back to the backend and ping-pong.
	p.store.Set(next)
}

func (p *Persistent[T]) report(err error) {
	if p.onError != nil {
		p.onError(err)
		return
	}
	p.logger.Warn("persistence degraded", "error", err)
}
