package ledger

import "time"

// DefaultTTL is how long delivered ids are remembered by expiring ledgers
const DefaultTTL = 30 * 24 * time.Hour

// DefaultKeyPrefix namespaces ledger keys in shared stores
const DefaultKeyPrefix = "breeze:delivered:"

type config struct {
	ttl       time.Duration
	keyPrefix string
	now       func() time.Time
}

func newConfig(opts []Option) config {
	c := config{ttl: DefaultTTL, keyPrefix: DefaultKeyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option configures a ledger
type Option func(*config)

// WithTTL sets how long a delivered id is remembered.
// Ignored by GormLedger, which keeps records until pruned.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the key prefix used by RedisLedger
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		c.keyPrefix = prefix
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}
