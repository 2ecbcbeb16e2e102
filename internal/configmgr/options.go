package configmgr

import (
	"time"

	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// Default settings applied by New.
const (
	DefaultCacheTTL         = 5 * time.Minute
	DefaultHistoryRetention = 50
)

type managerConfig struct {
	logger        *logging.Logger
	bus           *event.Bus
	persister     Persister
	cacheEnabled  bool
	cacheTTL      time.Duration
	retention     int
	encryptionKey []byte
	now           func() time.Time
}

// Option configures a Manager.
type Option func(*managerConfig)

// WithLogger sets the logger. If nil, a NopLogger is used.
func WithLogger(l *logging.Logger) Option {
	return func(c *managerConfig) { c.logger = l }
}

// WithEventBus publishes config.changed events on bus.
func WithEventBus(bus *event.Bus) Option {
	return func(c *managerConfig) { c.bus = bus }
}

// WithPersister writes every change through to p.
func WithPersister(p Persister) Option {
	return func(c *managerConfig) { c.persister = p }
}

// WithCache enables or disables the read cache and sets its TTL.
// A non-positive ttl keeps DefaultCacheTTL.
func WithCache(enabled bool, ttl time.Duration) Option {
	return func(c *managerConfig) {
		c.cacheEnabled = enabled
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithHistoryRetention bounds the versions kept per key. Values below one
// keep DefaultHistoryRetention.
func WithHistoryRetention(n int) Option {
	return func(c *managerConfig) {
		if n > 0 {
			c.retention = n
		}
	}
}

// WithEncryptionKey sets the 32 byte key used for encrypted values. Without
// one, a random key is generated when the Manager is created.
func WithEncryptionKey(key []byte) Option {
	return func(c *managerConfig) { c.encryptionKey = key }
}

func withClock(now func() time.Time) Option {
	return func(c *managerConfig) { c.now = now }
}
