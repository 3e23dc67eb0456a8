package live

import "time"

// SessionConfig holds per-session tuning for the live transport.
type SessionConfig struct {
	// ReadTimeout is the maximum time to wait for a message from the client.
	// The heartbeat refreshes it, so it must exceed HeartbeatInterval.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxEventQueue is the size of the session event channel buffer.
	// Actions arriving while the buffer is full are rejected with an
	// error frame rather than blocking the read loop.
	// Default: 256.
	MaxEventQueue int

	// EnableCompression enables permessage-deflate on the socket.
	// Default: true.
	EnableCompression bool
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    64 * 1024,
		MaxEventQueue:     256,
		EnableCompression: true,
	}
}

// withDefaults fills any zero field with its default so a partially
// populated config is still usable.
func (c *SessionConfig) withDefaults() *SessionConfig {
	if c == nil {
		return DefaultSessionConfig()
	}
	out := *c
	def := DefaultSessionConfig()
	if out.ReadTimeout == 0 {
		out.ReadTimeout = def.ReadTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = def.WriteTimeout
	}
	if out.HeartbeatInterval == 0 {
		out.HeartbeatInterval = def.HeartbeatInterval
	}
	if out.MaxMessageSize == 0 {
		out.MaxMessageSize = def.MaxMessageSize
	}
	if out.MaxEventQueue == 0 {
		out.MaxEventQueue = def.MaxEventQueue
	}
	return &out
}
