package live

import (
	"github.com/tether-go/tether"
)

// Component renders a fragment of HTML. Components read stores through
// the tether binding hooks and register handlers through UseAction;
// the hosting session re-invokes them whenever a bound store changes.
type Component func() string

// ActionHost registers action handlers during a render pass. The live
// Session implements it.
type ActionHost interface {
	RegisterAction(fn func()) string
}

// UseAction registers fn as a client-invocable action and returns its
// token. Bind the token into the markup, typically as a data-action
// attribute; the embedded client sends it back when the element is
// clicked, and the session runs fn on its event loop.
//
//	func Counter() string {
//	    count, _ := tether.UseStore(counter)
//	    inc := live.UseAction(func() { counter.Update(func(n int) int { return n + 1 }) })
//	    return fmt.Sprintf(`<button data-action=%q>Count: %d</button>`, inc, count)
//	}
//
// Tokens are valid until the next render pass replaces them. Outside a
// live session (server-side prerender, plain test mounts) UseAction
// returns an empty token; the markup renders, the action is inert.
func UseAction(fn func()) string {
	if host, ok := tether.CurrentHost().(ActionHost); ok {
		return host.RegisterAction(fn)
	}
	return ""
}
