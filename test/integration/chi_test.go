package integration_test

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/tether-go/tether"
	"github.com/tether-go/tether/pkg/live"
	"github.com/tether-go/tether/pkg/persist"
)

// wireMessage mirrors the live JSON protocol from outside the package.
type wireMessage struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`
	HTML    string `json:"html,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

var actionTokenRe = regexp.MustCompile(`data-action="([^"]+)"`)

func counterRoot(counter *tether.Store[int]) func() live.Component {
	return func() live.Component {
		return func() string {
			n, setN := tether.UseStore(counter)
			token := live.UseAction(func() { setN.Update(func(v int) int { return v + 1 }) })
			return fmt.Sprintf(`<div>count: %d <button data-action=%q>+</button></div>`, n, token)
		}
	}
}

func newRouter(srv *live.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/*", srv)
	return r
}

func dial(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + live.SocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		var m wireMessage
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("decode %q failed: %v", data, err)
		}
		if m.Type == "ping" || m.Type == "pong" {
			continue
		}
		return m
	}
}

func send(t *testing.T, conn *websocket.Conn, m wireMessage) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// TestChiMountedServer drives the whole stack through a chi router:
// plain API routes coexist with the live handler, the shell and client
// are served, and a WebSocket action round-trips to a new frame.
func TestChiMountedServer(t *testing.T) {
	counter := tether.New(0)
	srv := live.NewServer(counterRoot(counter),
		live.WithCheckOrigin(func(*http.Request) bool { return true }),
	)
	router := newRouter(srv)
	ts := httptest.NewServer(router)
	defer ts.Close()
	defer srv.Shutdown(context.Background())

	t.Run("api route bypasses live handler", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	t.Run("page has server-rendered first paint", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if !strings.Contains(rec.Body.String(), "count: 0") {
			t.Errorf("first paint missing rendered counter:\n%s", rec.Body.String())
		}
	})

	t.Run("client script is served", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", live.ClientPath, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "javascript") {
			t.Errorf("Content-Type = %q, want javascript", ct)
		}
	})

	t.Run("action round-trips to a new frame", func(t *testing.T) {
		conn := dial(t, ts.URL)

		first := readFrame(t, conn)
		if first.Type != "frame" {
			t.Fatalf("first message type = %q, want frame", first.Type)
		}
		match := actionTokenRe.FindStringSubmatch(first.HTML)
		if match == nil {
			t.Fatalf("no action token in frame:\n%s", first.HTML)
		}

		send(t, conn, wireMessage{Type: "action", Token: match[1], Seq: 1})
		next := readFrame(t, conn)
		if next.Type != "frame" {
			t.Fatalf("message type = %q, want frame", next.Type)
		}
		if !strings.Contains(next.HTML, "count: 1") {
			t.Errorf("frame after action = %q, want count: 1", next.HTML)
		}
	})
}

// TestPersistedStoreAcrossServers checks the durability contract end
// to end: a store written through one live session is read back by a
// second server process (approximated by a second store and server
// over the same backend).
func TestPersistedStoreAcrossServers(t *testing.T) {
	backend, err := persist.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	first := persist.New(0, "it/counter", persist.WithBackend(backend))
	srv := live.NewServer(func() live.Component {
		return func() string {
			n, setN := tether.UseStore[int](first)
			token := live.UseAction(func() { setN.Update(func(v int) int { return v + 1 }) })
			return fmt.Sprintf(`<p data-action=%q>%d</p>`, token, n)
		}
	}, live.WithCheckOrigin(func(*http.Request) bool { return true }))
	ts := httptest.NewServer(newRouter(srv))

	conn := dial(t, ts.URL)
	frame := readFrame(t, conn)
	match := actionTokenRe.FindStringSubmatch(frame.HTML)
	if match == nil {
		t.Fatalf("no action token in frame:\n%s", frame.HTML)
	}
	send(t, conn, wireMessage{Type: "action", Token: match[1], Seq: 1})
	next := readFrame(t, conn)
	if !strings.Contains(next.HTML, ">1<") {
		t.Fatalf("frame after action = %q, want value 1", next.HTML)
	}

	first.Flush()
	_ = conn.Close()
	ts.Close()
	_ = srv.Shutdown(context.Background())
	_ = first.Close()

	// A fresh store over the same backend starts from the stored value,
	// not its initial argument.
	second := persist.New(99, "it/counter", persist.WithBackend(backend))
	defer second.Close()
	if got := second.Get(); got != 1 {
		t.Errorf("restored value = %d, want 1", got)
	}
}
