package persist

import (
	"encoding/json"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// Option configures a persistent store at construction.
type Option func(*config)

type config struct {
	backend Backend
	session bool

	encode func(any) ([]byte, error)
	decode func([]byte, any) error

	onError      func(error)
	logger       *slog.Logger
	writeTimeout time.Duration
}

func defaultConfig() *config {
	return &config{
		encode:       json.Marshal,
		decode:       json.Unmarshal,
		logger:       slog.Default(),
		writeTimeout: 5 * time.Second,
	}
}

// WithBackend selects an explicit backend. The store never closes a
// backend supplied this way; its owner does.
func WithBackend(b Backend) Option {
	return func(c *config) {
		c.backend = b
	}
}

// WithSession keeps the value for the lifetime of the process instead
// of durably: the store uses the shared in-process Session backend.
func WithSession() Option {
	return func(c *config) {
		c.session = true
	}
}

// WithCodec replaces the JSON default with a custom encode/decode pair.
// decode receives a pointer to the value to fill, json.Unmarshal style.
func WithCodec(encode func(any) ([]byte, error), decode func([]byte, any) error) Option {
	return func(c *config) {
		c.encode = encode
		c.decode = decode
	}
}

// YAMLCodec stores the value as YAML instead of JSON.
func YAMLCodec() Option {
	return WithCodec(
		func(v any) ([]byte, error) { return yaml.Marshal(v) },
		func(data []byte, v any) error { return yaml.Unmarshal(data, v) },
	)
}

// WithErrorHandler routes persistence errors to fn instead of the log.
// Persistence errors are always non-fatal; this is the side channel
// they arrive on.
func WithErrorHandler(fn func(error)) Option {
	return func(c *config) {
		c.onError = fn
	}
}

// WithLogger sets the logger used for persistence warnings. Default:
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithWriteTimeout bounds each backend read or write. Default: 5s.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		c.writeTimeout = d
	}
}
