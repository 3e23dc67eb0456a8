// Package persist adds best-effort durability to tether stores.
//
// A persistent store is a drop-in Bindable: components bind it exactly
// like a plain store. Construction reads the backend once and falls
// back to the initial value when the key is absent or undecodable;
// every write updates memory synchronously and hands the encoded value
// to a background writer. Persistence failures never propagate into
// the write path — they are reported to an error handler or logged,
// and the in-memory value remains authoritative.
//
//	theme := persist.New("light", "theme")
//	theme.Set("dark") // listeners notified now, file written shortly after
//
// # Backends
//
// The default backend stores each key as a JSON file under the user's
// config directory. WithSession selects a process-lifetime in-memory
// backend instead. Redis, SQL, and S3 backends cover shared state
// across server instances; all of them wrap an existing client or
// handle and leave its lifecycle to the caller. In an environment with
// no usable backend at all, a persistent store silently behaves like a
// plain one.
//
// Backends that can observe writes made by other processes (the file
// backend, the in-process memory backend) feed them back into the
// store, so a state file edited externally updates every component
// bound to it. The watch is attached lazily, the first time a binding
// actually displays the value.
package persist
