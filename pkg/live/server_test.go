package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tether-go/tether"
)

var actionTokenRe = regexp.MustCompile(`data-action="([^"]+)"`)

func newCounterServer(t *testing.T) (*Server, *tether.Store[int]) {
	t.Helper()
	counter := tether.New(0)
	root := func() Component {
		return func() string {
			n, setN := tether.UseStore(counter)
			token := UseAction(func() { setN.Set(n + 1) })
			return fmt.Sprintf(`<div>count: %d <button data-action=%q>+</button></div>`, n, token)
		}
	}
	return NewServer(root, WithLogger(discardLogger())), counter
}

func wsURL(t *testing.T, baseURL string) string {
	t.Helper()
	if !strings.HasPrefix(baseURL, "http") {
		t.Fatalf("unexpected base URL: %q", baseURL)
	}
	return "ws" + strings.TrimPrefix(baseURL, "http") + SocketPath
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var m serverMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %q failed: %v", data, err)
	}
	return m
}

func sendMessage(t *testing.T, conn *websocket.Conn, m clientMessage) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPageServesShellWithFirstPaint(t *testing.T) {
	srv, _ := newCounterServer(t)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `<div id="tether-root">`) {
		t.Error("shell missing mount point")
	}
	if !strings.Contains(body, "count: 0") {
		t.Error("shell missing server-rendered first paint")
	}
	if !strings.Contains(body, ClientPath) {
		t.Error("shell missing client script tag")
	}
}

func TestPageMethodNotAllowed(t *testing.T) {
	srv, _ := newCounterServer(t)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
	if rr.Header().Get("Allow") == "" {
		t.Error("expected Allow header")
	}
}

func TestPageHeadHasNoBody(t *testing.T) {
	srv, _ := newCounterServer(t)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodHead, "/", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("HEAD body = %d bytes, want 0", rr.Body.Len())
	}
}

func TestPageTitleIsEscaped(t *testing.T) {
	root := func() Component {
		return func() string { return "ok" }
	}
	srv := NewServer(root, WithLogger(discardLogger()), WithTitle(`<script>alert(1)</script>`))

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rr.Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("title must be HTML-escaped")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Errorf("escaped title missing from shell: %q", body)
	}
}

func TestSSRPanicFallsBackToEmptyShell(t *testing.T) {
	root := func() Component {
		return func() string { panic("render exploded") }
	}
	srv := NewServer(root, WithLogger(discardLogger()))

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `<div id="tether-root"></div>`) {
		t.Error("panicking render should fall back to an empty mount point")
	}
}

func TestClientScriptServedWithETag(t *testing.T) {
	srv, _ := newCounterServer(t)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, ClientPath, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Errorf("Content-Type = %q", ct)
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("ETag should be set")
	}

	req := httptest.NewRequest(http.MethodGet, ClientPath, nil)
	req.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotModified {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotModified)
	}
}

func TestLiveSessionActionRoundTrip(t *testing.T) {
	srv, counter := newCounterServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWS(t, wsURL(t, ts.URL))

	first := readMessage(t, conn)
	if first.Type != msgFrame || first.Seq != 1 {
		t.Fatalf("first message = %+v, want frame seq 1", first)
	}
	if !strings.Contains(first.HTML, "count: 0") {
		t.Fatalf("first frame = %q", first.HTML)
	}
	m := actionTokenRe.FindStringSubmatch(first.HTML)
	if m == nil {
		t.Fatalf("no action token in frame %q", first.HTML)
	}

	sendMessage(t, conn, clientMessage{Type: msgAction, Token: m[1], Seq: 1})

	second := readMessage(t, conn)
	if second.Type != msgFrame || second.Seq != 2 {
		t.Fatalf("second message = %+v, want frame seq 2", second)
	}
	if !strings.Contains(second.HTML, "count: 1") {
		t.Errorf("second frame = %q, want count 1", second.HTML)
	}
	if got := counter.Get(); got != 1 {
		t.Errorf("counter = %d, want 1", got)
	}
}

func TestLiveSessionSeesExternalWrites(t *testing.T) {
	status := tether.New("idle")
	root := func() Component {
		return func() string {
			v, _ := tether.UseStore(status)
			return "<p>" + v + "</p>"
		}
	}
	srv := NewServer(root, WithLogger(discardLogger()))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWS(t, wsURL(t, ts.URL))

	first := readMessage(t, conn)
	if !strings.Contains(first.HTML, "idle") {
		t.Fatalf("first frame = %q", first.HTML)
	}

	// The first write re-renders to identical HTML, which must not
	// produce a frame; the next frame on the wire is the changed one.
	status.Set("idle")
	status.Set("busy")

	next := readMessage(t, conn)
	if next.Type != msgFrame || !strings.Contains(next.HTML, "busy") {
		t.Fatalf("next message = %+v, want busy frame", next)
	}
	if next.Seq != 2 {
		t.Errorf("seq = %d, want 2 (identical frame must be suppressed)", next.Seq)
	}
}

func TestLiveSessionUnknownTokenGetsErrorFrame(t *testing.T) {
	srv, _ := newCounterServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWS(t, wsURL(t, ts.URL))
	_ = readMessage(t, conn)

	sendMessage(t, conn, clientMessage{Type: msgAction, Token: "a999", Seq: 1})

	m := readMessage(t, conn)
	if m.Type != msgError || m.Code != "action_not_found" {
		t.Errorf("message = %+v, want action_not_found error", m)
	}
}

func TestLiveSessionPingPong(t *testing.T) {
	srv, _ := newCounterServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWS(t, wsURL(t, ts.URL))
	_ = readMessage(t, conn)

	sendMessage(t, conn, clientMessage{Type: msgPing})

	if m := readMessage(t, conn); m.Type != msgPong {
		t.Errorf("message = %+v, want pong", m)
	}
}

func TestSessionCountTracksConnections(t *testing.T) {
	srv, _ := newCounterServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWS(t, wsURL(t, ts.URL))
	_ = readMessage(t, conn)

	waitFor(t, "session registration", func() bool { return srv.SessionCount() == 1 })

	sendMessage(t, conn, clientMessage{Type: msgClose})

	waitFor(t, "session removal", func() bool { return srv.SessionCount() == 0 })
}

func TestServerShutdownRefusesNewConnections(t *testing.T) {
	srv, _ := newCounterServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWS(t, wsURL(t, ts.URL))
	_ = readMessage(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	waitFor(t, "session removal", func() bool { return srv.SessionCount() == 0 })

	if _, _, err := websocket.DefaultDialer.Dial(wsURL(t, ts.URL), nil); err == nil {
		t.Error("dial should fail after shutdown")
	}
}

func TestSameOriginCheck(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "example.com", true},
		{"same host", "https://example.com", "example.com", true},
		{"different host", "https://evil.example", "example.com", false},
		{"different port", "http://example.com:9999", "example.com:8080", false},
		{"garbage origin", "http://bad url", "example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := SameOriginCheck(r); got != tt.want {
				t.Errorf("SameOriginCheck() = %v, want %v", got, tt.want)
			}
		})
	}
}
