package live

import (
	"context"
	"crypto/sha256"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tether-go/tether"
	clientdist "github.com/tether-go/tether/client/dist"
)

const (
	// SocketPath is where the browser client connects its WebSocket.
	SocketPath = "/tether/live"

	// ClientPath serves the embedded browser client bundle.
	ClientPath = "/tether/client.js"

	tracerName = "github.com/tether-go/tether/pkg/live"
)

// Server is an http.Handler that serves a live-updating component over
// a WebSocket. Any request outside the two reserved paths gets the HTML
// shell with a server-rendered first paint; the client script then
// opens the socket and swaps in frames as stores change.
type Server struct {
	root     func() Component
	upgrader websocket.Upgrader
	session  *SessionConfig
	title    string

	originCheck func(*http.Request) bool

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics attaches Prometheus instrumentation. Without it the
// server records nothing.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTracing wraps action handlers in OpenTelemetry spans from the
// globally registered tracer provider.
func WithTracing() Option {
	return func(s *Server) { s.tracer = otel.Tracer(tracerName) }
}

// WithTracer uses a specific tracer instead of the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithTitle sets the page title of the HTML shell.
func WithTitle(title string) Option {
	return func(s *Server) { s.title = title }
}

// WithSessionConfig overrides per-session tuning. Zero fields keep
// their defaults.
func WithSessionConfig(c *SessionConfig) Option {
	return func(s *Server) { s.session = c }
}

// WithCheckOrigin replaces the WebSocket origin check. The default
// rejects cross-origin upgrades.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *Server) { s.originCheck = fn }
}

// NewServer builds a live server around a root component factory. The
// factory runs once per session so components can hold per-session
// state; shared stores keep their identity across sessions regardless.
func NewServer(root func() Component, opts ...Option) *Server {
	s := &Server{
		root:        root,
		session:     DefaultSessionConfig(),
		title:       "Tether",
		originCheck: SameOriginCheck,
		logger:      slog.Default(),
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.session = s.session.withDefaults()
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: s.session.EnableCompression,
		CheckOrigin:       s.originCheck,
	}
	return s
}

// SameOriginCheck is the default WebSocket origin policy: requests
// without an Origin header pass, everything else must match the host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return r.Host != "" && originURL.Host == r.Host
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case SocketPath:
		s.HandleWebSocket(w, r)
	case ClientPath:
		s.serveClient(w, r)
	default:
		s.handlePage(w, r)
	}
}

// HandleWebSocket upgrades the connection and starts a session for it.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Error("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		s.metrics.wsError("upgrade")
		return
	}

	sess := newSession(conn, s.root(), s.session, s.logger, s.metrics, s.tracer)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	active := len(s.sessions)
	s.mu.Unlock()

	s.metrics.sessionOpened()
	s.logger.Info("session connected",
		"session_id", sess.ID,
		"remote", r.RemoteAddr,
		"active", active,
	)

	go func() {
		<-sess.Done()
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
	}()

	sess.Start()
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown refuses new connections and closes every live session,
// waiting for each to finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	for _, sess := range sessions {
		select {
		case <-sess.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

const pageShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body>
<div id="tether-root">%s</div>
<script src="%s" defer></script>
</body>
</html>
`

// handlePage serves the HTML shell for any non-reserved path. The body
// carries a server-rendered first paint so the page is not blank while
// the socket connects.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	page := fmt.Sprintf(pageShell, html.EscapeString(s.title), s.renderSSR(), ClientPath)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, page)
}

// renderSSR runs one throwaway render of the root component for the
// first paint. The scope is disposed immediately and its effects never
// run, so the render subscribes to nothing; the session re-renders
// from live store state as soon as the socket connects.
func (s *Server) renderSSR() (out string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("ssr render panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			out = ""
		}
	}()

	scope := tether.NewScope(nil, nil)
	defer scope.Dispose()
	scope.SetValue(tether.StoresKey, tether.NewStores())

	component := s.root()
	tether.WithScope(scope, func() {
		scope.StartRender()
		out = component()
		scope.EndRender()
	})
	return out
}

var clientETag = func() string {
	sum := sha256.Sum256(clientdist.TetherJS)
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sum[:]))
}()

// serveClient serves the embedded browser client with ETag caching.
func (s *Server) serveClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("ETag", clientETag)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if etagMatches(r.Header.Get("If-None-Match"), clientETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clientdist.TetherJS)
}

func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}
