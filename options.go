package vorm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vormdb/vorm/internal/engine"
	"github.com/vormdb/vorm/internal/ident"
)

// Option configures the Engine.
type Option interface {
	apply(*engineConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*engineConfig)

func (f optionFunc) apply(c *engineConfig) { f(c) }

type engineConfig struct {
	addrs     []string
	username  string
	password  string
	db        int
	keyPrefix string

	readinessTimeout time.Duration

	queryLimit        int
	idCacheSize       int
	fusionConcurrency int

	logger     *zap.Logger
	metricsReg prometheus.Registerer

	store engine.Store // test seam
}

func defaultOptions() engineConfig {
	return engineConfig{
		addrs:             []string{"localhost:6379"},
		readinessTimeout:  10 * time.Second,
		queryLimit:        defaultLimit,
		idCacheSize:       ident.DefaultCacheSize,
		fusionConcurrency: 4,
	}
}

// WithRedis points the engine at a Redis instance with RediSearch.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *engineConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithAddrs sets the engine addresses.
func WithAddrs(addrs ...string) Option {
	return optionFunc(func(c *engineConfig) {
		c.addrs = addrs
	})
}

// WithAuth sets connection credentials.
func WithAuth(username, password string) Option {
	return optionFunc(func(c *engineConfig) {
		c.username = username
		c.password = password
	})
}

// WithDB selects a logical database index.
func WithDB(db int) Option {
	return optionFunc(func(c *engineConfig) {
		c.db = db
	})
}

// WithKeyPrefix sets the key namespace for stored points and indexes.
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *engineConfig) {
		c.keyPrefix = prefix
	})
}

// WithReadinessTimeout bounds how long Open waits for the engine to
// answer pings. Zero disables the readiness probe.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *engineConfig) {
		c.readinessTimeout = d
	})
}

// WithDefaultLimit sets the result limit used when a query gives none.
// Default: 10.
func WithDefaultLimit(n int) Option {
	return optionFunc(func(c *engineConfig) {
		if n > 0 {
			c.queryLimit = n
		}
	})
}

// WithIDCacheSize bounds the identifier reconciliation cache.
// Default: 4096 entries.
func WithIDCacheSize(n int) Option {
	return optionFunc(func(c *engineConfig) {
		if n > 0 {
			c.idCacheSize = n
		}
	})
}

// WithFusionConcurrency caps how many per-field searches a combined
// vector query runs in parallel. One means sequential. Default: 4.
func WithFusionConcurrency(n int) Option {
	return optionFunc(func(c *engineConfig) {
		if n > 0 {
			c.fusionConcurrency = n
		}
	})
}

// WithLogger enables structured logging for engine operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *engineConfig) {
		c.logger = l
	})
}

// WithPrometheus registers operation counters and duration histograms on
// the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *engineConfig) {
		c.metricsReg = reg
	})
}
