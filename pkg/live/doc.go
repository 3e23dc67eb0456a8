// Package live serves tether components to browsers over a WebSocket.
//
// A Server renders a root component to HTML and streams full frames to
// the client whenever store writes dirty the session scope. The browser
// side is a small embedded script: it swaps frames into the page and
// reports data-action clicks back to the server, where UseAction
// handlers run on the session's event loop.
//
// # Quick Start
//
//	counter := tether.New(0)
//
//	root := func() live.Component {
//		return func() string {
//			n, setN := tether.UseStore(counter)
//			token := live.UseAction(func() { setN.Set(n + 1) })
//			return fmt.Sprintf(`<button data-action=%q>clicked %d times</button>`, token, n)
//		}
//	}
//
//	srv := live.NewServer(root, live.WithTitle("Counter"))
//	log.Fatal(http.ListenAndServe(":4600", srv))
//
// Because counter is a package-level store, every connected browser
// shows the same count and every click updates all of them.
//
// # Rendering Model
//
// Each session owns one scope and one event loop goroutine. Component
// code, action handlers, and effects all run there, so handlers read
// and write stores without locking. A frame goes out only when the
// rendered HTML actually changed, and effects run after the frame is
// on the wire.
//
// # Server-Side Rendering
//
// A plain GET on any non-reserved path receives the HTML shell with a
// throwaway render of the root component as the first paint. That
// render never runs effects and subscribes to nothing; the session
// re-renders from current store state as soon as the socket connects,
// so a store write landing between the two can delay nothing and lose
// nothing.
package live
