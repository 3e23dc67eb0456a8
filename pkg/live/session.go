package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tether-go/tether"
)

var (
	// ErrSessionClosed is returned when an operation reaches a session
	// that has already shut down.
	ErrSessionClosed = errors.New("live: session closed")

	// ErrEventQueueFull is returned when the event buffer is full and
	// an incoming action is dropped.
	ErrEventQueueFull = errors.New("live: event queue full")
)

// Event is a client action delivered to the session event loop.
type Event struct {
	// Token identifies the handler registered during the last render.
	Token string

	// Seq is the client's message sequence number.
	Seq uint64
}

// Session is one connected client: a WebSocket, a root component, and
// the scope the component renders in. All component code runs on the
// session's event loop goroutine, so handlers never need locks around
// store access within a session.
type Session struct {
	// Identity
	ID        string
	CreatedAt time.Time

	// Connection
	conn   *websocket.Conn
	mu     sync.Mutex // guards writes to conn
	closed atomic.Bool

	// Sequence tracking
	sendSeq atomic.Uint64
	recvSeq atomic.Uint64

	// Component state. Owned by the event loop goroutine.
	component Component
	scope     *tether.Scope
	stores    *tether.Stores
	actions   map[string]func()
	actionSeq uint64
	lastHTML  string

	// Channels
	events     chan Event
	dispatchCh chan func()
	renderCh   chan struct{}
	done       chan struct{}

	// Configuration
	config *SessionConfig

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	// Stats
	eventCount atomic.Uint64
	frameCount atomic.Uint64
	bytesSent  atomic.Uint64
	bytesRecv  atomic.Uint64
}

// newSession creates a session for an upgraded connection. Call Start
// to begin the read, write, and event loops.
func newSession(conn *websocket.Conn, component Component, config *SessionConfig, logger *slog.Logger, metrics *Metrics, tracer trace.Tracer) *Session {
	id := uuid.New().String()
	s := &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		conn:       conn,
		component:  component,
		stores:     tether.NewStores(),
		actions:    make(map[string]func()),
		events:     make(chan Event, config.MaxEventQueue),
		dispatchCh: make(chan func(), config.MaxEventQueue),
		renderCh:   make(chan struct{}, 1),
		done:       make(chan struct{}),
		config:     config,
		logger:     logger.With("session_id", id),
		metrics:    metrics,
		tracer:     tracer,
	}
	s.scope = tether.NewScope(nil, s)
	s.scope.SetValue(tether.StoresKey, s.stores)
	return s
}

// Start launches the session goroutines.
func (s *Session) Start() {
	go s.ReadLoop()
	go s.WriteLoop()
	go s.EventLoop()
}

// Stores returns the session's store registry. Shared stores resolved
// during render live here for the lifetime of the session.
func (s *Session) Stores() *tether.Stores {
	return s.stores
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// IsClosed reports whether the session has shut down.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// ScheduleRender implements tether.RenderScheduler. Store writes that
// mark the scope dirty land here; the send is non-blocking because the
// channel holds one token and one token is enough.
func (s *Session) ScheduleRender(*tether.Scope) {
	select {
	case s.renderCh <- struct{}{}:
	default:
	}
}

// RegisterAction implements ActionHost. It is called from component
// render code via UseAction and returns the token the client echoes
// back on interaction. Tokens are monotonic across renders so a click
// raced against a re-render can never invoke the wrong handler.
func (s *Session) RegisterAction(fn func()) string {
	s.actionSeq++
	token := fmt.Sprintf("a%d", s.actionSeq)
	s.actions[token] = fn
	return token
}

// QueueEvent hands a client action to the event loop. It never blocks:
// a full queue returns ErrEventQueueFull and the event is dropped.
func (s *Session) QueueEvent(ev Event) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		s.logger.Warn("event queue full, dropping action", "token", ev.Token)
		return ErrEventQueueFull
	}
}

// Dispatch runs fn on the event loop goroutine and re-renders if fn
// dirtied the scope. It is the bridge for background goroutines that
// need to touch per-session state.
func (s *Session) Dispatch(fn func()) {
	if s.closed.Load() {
		return
	}
	select {
	case s.dispatchCh <- fn:
	case <-s.done:
	default:
		s.logger.Warn("dispatch queue full, discarding callback")
	}
}

// EventLoop renders the initial frame and then serves actions,
// dispatched callbacks, and render requests until the session closes.
// It is the only goroutine that runs component code.
func (s *Session) EventLoop() {
	s.mount()

	for {
		select {
		case ev := <-s.events:
			s.handleAction(ev)
		case fn := <-s.dispatchCh:
			s.executeDispatch(fn)
		case <-s.renderCh:
			s.renderDirty()
		case <-s.done:
			return
		}
	}
}

// mount performs the first render. The frame is always sent, even if
// it matches the server-rendered shell, so the client learns the
// starting sequence number.
func (s *Session) mount() {
	s.scope.ClearDirty()
	start := time.Now()
	html := s.renderPass()
	s.metrics.renderObserved(time.Since(start).Seconds())
	s.lastHTML = html
	s.sendFrame(html)
	s.scope.FlushEffects()
}

// handleAction resolves an action token and runs its handler. A token
// from a stale frame resolves to nothing; the client is told rather
// than silently ignored.
func (s *Session) handleAction(ev Event) {
	if s.closed.Load() {
		return
	}
	s.recvSeq.Store(ev.Seq)
	s.eventCount.Add(1)

	fn, ok := s.actions[ev.Token]
	if !ok {
		s.logger.Warn("action not found", "token", ev.Token, "seq", ev.Seq)
		s.metrics.actionProcessed("unknown")
		s.sendError("action_not_found", "No handler for action "+ev.Token)
		return
	}

	var span trace.Span
	if s.tracer != nil {
		_, span = s.tracer.Start(context.Background(), "tether.action",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("tether.session_id", s.ID),
				attribute.String("tether.action_token", ev.Token),
			),
		)
	}

	okRun := s.safeExecute(fn, ev.Token)

	status := "ok"
	if !okRun {
		status = "panic"
	}
	if span != nil {
		if okRun {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, "action handler panicked")
		}
		span.End()
	}
	s.metrics.actionProcessed(status)

	s.renderDirty()
}

// safeExecute runs an action handler, converting a panic into a logged
// error frame so one bad handler does not take the session down.
func (s *Session) safeExecute(fn func(), token string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("action handler panicked",
				"panic", r,
				"token", token,
				"stack", string(debug.Stack()),
			)
			s.sendError("action_panic", "Internal error")
		}
	}()
	fn()
	return true
}

// executeDispatch runs a Dispatch callback with the same panic
// containment as action handlers, then re-renders if needed.
func (s *Session) executeDispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispatched callback panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
	s.renderDirty()
}

// renderDirty re-renders if the scope is dirty and ships the result
// when it differs from the last frame. Effects run after the frame is
// on the wire: render, commit, then effects.
func (s *Session) renderDirty() {
	if s.closed.Load() {
		return
	}
	if !s.scope.ClearDirty() {
		return
	}

	start := time.Now()
	html := s.renderPass()
	s.metrics.renderObserved(time.Since(start).Seconds())

	if html != s.lastHTML {
		s.lastHTML = html
		s.sendFrame(html)
	}

	s.scope.FlushEffects()
}

// renderPass runs the root component inside the session scope with the
// session installed as host. The action registry is rebuilt from
// scratch because tokens embedded in the previous frame die with it.
func (s *Session) renderPass() string {
	s.actions = make(map[string]func())
	var html string
	tether.WithHost(s, func() {
		tether.WithScope(s.scope, func() {
			s.scope.StartRender()
			html = s.component()
			s.scope.EndRender()
		})
	})
	return html
}

// Close shuts the session down. Safe to call from any goroutine and
// more than once.
func (s *Session) Close() {
	s.closeInternal()
}

// closeInternal is the single shutdown path. The Swap guarantees the
// body runs exactly once no matter how many goroutines race here.
func (s *Session) closeInternal() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)

	s.scope.Dispose()

	if s.conn != nil {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	}

	s.metrics.sessionClosed()
	s.logger.Info("session closed",
		"events", s.eventCount.Load(),
		"frames", s.frameCount.Load(),
		"bytes_sent", s.bytesSent.Load(),
		"bytes_recv", s.bytesRecv.Load(),
		"uptime", time.Since(s.CreatedAt).Round(time.Millisecond),
	)
}

// SessionStats is a point-in-time snapshot of session counters.
type SessionStats struct {
	ID        string
	CreatedAt time.Time
	Events    uint64
	Frames    uint64
	BytesSent uint64
	BytesRecv uint64
}

// Stats returns a snapshot of the session's counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Events:    s.eventCount.Load(),
		Frames:    s.frameCount.Load(),
		BytesSent: s.bytesSent.Load(),
		BytesRecv: s.bytesRecv.Load(),
	}
}
