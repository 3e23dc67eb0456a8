package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tether-go/tether/internal/errors"
)

const (
	// FileName is the name of the configuration file.
	FileName = "tether.json"

	// DefaultPort is the default server port.
	DefaultPort = 3000

	// DefaultHost is the default server bind host.
	DefaultHost = "localhost"
)

// Config is the complete tether.json configuration.
type Config struct {
	// Name is the project name, used in the page title and log fields.
	Name string `json:"name,omitempty"`

	// Server configures the HTTP listener.
	Server ServerConfig `json:"server,omitempty"`

	// Persist configures the durable state backend.
	Persist PersistConfig `json:"persist,omitempty"`

	// Log configures structured logging.
	Log LogConfig `json:"log,omitempty"`

	// Session tunes the live session transport.
	Session SessionConfig `json:"session,omitempty"`

	// configPath remembers where the config was loaded from, for Save.
	configPath string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address.
	Host string `json:"host,omitempty"`

	// Port is the listen port.
	Port int `json:"port,omitempty"`

	// MetricsAddr, when set, serves Prometheus metrics on a separate
	// listener (e.g. "localhost:9090"). Empty disables the metrics
	// endpoint.
	MetricsAddr string `json:"metricsAddr,omitempty"`
}

// PersistConfig selects and configures the state backend.
type PersistConfig struct {
	// Backend is one of: memory, file, sql, redis, s3.
	Backend string `json:"backend,omitempty"`

	// Dir is the state directory for the file backend. Empty uses the
	// per-user default.
	Dir string `json:"dir,omitempty"`

	// DSN is the connection string for the sql backend.
	DSN string `json:"dsn,omitempty"`

	// Dialect is the sql dialect: sqlite, postgres, or mysql.
	Dialect string `json:"dialect,omitempty"`

	// Table is the sql table name. Empty uses the backend default.
	Table string `json:"table,omitempty"`

	// Addr is the redis server address.
	Addr string `json:"addr,omitempty"`

	// Bucket is the s3 bucket name.
	Bucket string `json:"bucket,omitempty"`

	// Prefix namespaces keys on shared backends (redis, s3).
	Prefix string `json:"prefix,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty"`
}

// SessionConfig tunes the live session transport. Durations are Go
// duration strings ("30s"); zero values keep the live defaults.
type SessionConfig struct {
	// EventQueue is the per-session action buffer size.
	EventQueue int `json:"eventQueue,omitempty"`

	// Heartbeat is the interval between heartbeat pings.
	Heartbeat string `json:"heartbeat,omitempty"`

	// ReadTimeout is the client silence tolerance.
	ReadTimeout string `json:"readTimeout,omitempty"`
}

// validBackends are the recognized Persist.Backend values. Empty means
// unset and falls back to the file backend.
var validBackends = map[string]bool{
	"":       true,
	"memory": true,
	"file":   true,
	"sql":    true,
	"redis":  true,
	"s3":     true,
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Persist: PersistConfig{
			Backend: "file",
			Dialect: "sqlite",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads tether.json from dir, walking up through parents the way
// go.mod is found, so commands work from anywhere inside a project.
func Load(dir string) (*Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	for d := abs; ; {
		path := filepath.Join(d, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	return nil, errors.New("E201").
		WithDetail("No " + FileName + " found in " + abs + " or any parent directory").
		WithSuggestion("Create " + FileName + " in the project root")
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E201").
				WithDetail("No config file found at " + path)
		}
		return nil, errors.New("E202").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E202").
			WithDetail("Failed to parse " + path + ": " + err.Error()).
			WithSuggestion("Check that " + FileName + " is valid JSON")
	}
	cfg.configPath = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks semantic constraints that JSON decoding cannot.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("E203").
			WithDetail("Server.Port is " + itoa(c.Server.Port))
	}
	if !validBackends[c.Persist.Backend] {
		return errors.New("E204").
			WithDetail("Persist.Backend is " + c.Persist.Backend)
	}
	return nil
}

// Save writes the config back to the path it was loaded from, or to
// tether.json in dir for a config created with New.
func (c *Config) Save(dir string) error {
	path := c.configPath
	if path == "" {
		path = filepath.Join(dir, FileName)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E202").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Newf(errors.CategoryConfig, "writing %s: %v", path, err)
	}
	c.configPath = path
	return nil
}

// Path returns where the config was loaded from or saved to. Empty for
// a fresh New that has never been saved.
func (c *Config) Path() string {
	return c.configPath
}

// Addr returns the host:port pair the server should listen on.
func (c *Config) Addr() string {
	host := c.Server.Host
	if host == "" {
		host = DefaultHost
	}
	port := c.Server.Port
	if port == 0 {
		port = DefaultPort
	}
	return host + ":" + itoa(port)
}

// itoa converts int to string without importing strconv.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	digits := make([]byte, 0, 10)
	for n > 0 {
		digits = append(digits, byte('0'+n%10))
		n /= 10
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}
