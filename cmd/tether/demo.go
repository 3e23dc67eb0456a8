package main

import (
	"fmt"
	"log/slog"

	"github.com/tether-go/tether"
	"github.com/tether-go/tether/internal/config"
	"github.com/tether-go/tether/pkg/live"
	"github.com/tether-go/tether/pkg/persist"
)

// sessionCounter is per-session state: every connected browser gets
// its own count.
var sessionCounter = tether.NewShared(0)

// newDemo builds the demo root component backed by the configured
// persistence backend. The persisted counter is one store shared by
// every session, so a click in one browser updates all of them and
// the value survives a server restart.
func newDemo(cfg *config.Config, logger *slog.Logger) (func() live.Component, func(), error) {
	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	global := persist.New(0, "demo/counter",
		persist.WithBackend(backend),
		persist.WithLogger(logger),
	)

	cleanup := func() {
		_ = global.Close()
		closeBackend()
	}
	return func() live.Component {
		return func() string { return demoHTML(global) }
	}, cleanup, nil
}

// newMemoryDemo is the headless fallback: same component, no durable
// counter.
func newMemoryDemo() func() live.Component {
	return func() live.Component {
		return func() string { return demoHTML(nil) }
	}
}

// demoHTML renders the demo. The session counter goes through the
// shared-store binding; the global counter, when present, through a
// persistent store bound the same way.
func demoHTML(global *persist.Persistent[int]) string {
	// Resolve during render, where the session's registry is in scope;
	// the action closure runs later, outside it.
	counter := sessionCounter.Resolve()
	mine, _ := tether.UseStore[int](counter)
	incMine := live.UseAction(func() {
		counter.Update(func(n int) int { return n + 1 })
	})

	globalRow := `<p><em>No durable backend configured; only the session counter is live.</em></p>`
	if global != nil {
		all, _ := tether.UseStore[int](global)
		incAll := live.UseAction(func() {
			global.Update(func(n int) int { return n + 1 })
		})
		globalRow = fmt.Sprintf(
			`<p>Everyone's count: <strong>%d</strong> <button data-action=%q>+1</button><br>
<small>shared across sessions and restarts</small></p>`, all, incAll)
	}

	return fmt.Sprintf(`<h1>Tether</h1>
<p>Your count: <strong>%d</strong> <button data-action=%q>+1</button></p>
%s`, mine, incMine, globalRow)
}
