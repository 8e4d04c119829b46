package atv

import (
	"time"

	"github.com/atvkit/atvkit/internal/storage"
)

// Config gathers the knobs every public operation accepts: which
// client identity to announce, how long discovery waits, and where
// pairing credentials persist between runs.
type Config struct {
	ClientName string
	ScanTimeout time.Duration
	Store      storage.Storage
}

// DefaultConfig returns the configuration Scan/Connect/Pair use when
// the caller supplies no options: an in-memory-only credential store
// and a 3s scan window, matching §4.5's default.
func DefaultConfig() Config {
	return Config{
		ClientName:  "atvkit",
		ScanTimeout: 3 * time.Second,
		Store:       storage.NewMemoryStorage(),
	}
}

// Option mutates a Config built from DefaultConfig.
type Option func(*Config)

// WithClientName sets the identity string announced during pairing and
// connect handshakes.
func WithClientName(name string) Option {
	return func(c *Config) { c.ClientName = name }
}

// WithScanTimeout overrides the default scan window.
func WithScanTimeout(d time.Duration) Option {
	return func(c *Config) { c.ScanTimeout = d }
}

// WithStorage sets the credential/settings backend; pass
// storage.NewFileStorage(path) to persist pairings across runs.
func WithStorage(s storage.Storage) Option {
	return func(c *Config) { c.Store = s }
}

func resolveConfig(opts []Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
