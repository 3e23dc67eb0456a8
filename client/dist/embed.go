package clientdist

import _ "embed"

// TetherJS is the thin client JavaScript bundle.
//
// It is served by the framework at "/tether/client.js".
//go:embed tether.js
var TetherJS []byte
