// Package vorm maps schema-described records onto an external vector
// search engine. It translates composable filters into native engine
// queries, reconciles application identifiers with engine point ids,
// dispatches between retrieval modes and fuses weighted multi-vector
// searches into a single ranking.
package vorm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vormdb/vorm/internal/config"
	"github.com/vormdb/vorm/internal/engine"
	"github.com/vormdb/vorm/internal/engine/redis"
	"github.com/vormdb/vorm/internal/ident"
	"github.com/vormdb/vorm/internal/logger"
)

const defaultLimit = 10

// Engine is the entry point: it owns the store connection, the id cache
// and the observability hooks. Create one with Open, then use Sessions
// for reads and writes.
type Engine struct {
	store engine.Store
	log   *zap.Logger
	obs   *observer
	ids   *ident.Cache

	defaultLimit      int
	fusionConcurrency int
}

// Open connects to the configured engine and verifies it is reachable.
func Open(ctx context.Context, opts ...Option) (*Engine, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	store := cfg.store
	if store == nil {
		var err error
		store, err = redis.NewStore(redis.Config{
			Addrs:     cfg.addrs,
			Username:  cfg.username,
			Password:  cfg.password,
			DB:        cfg.db,
			KeyPrefix: cfg.keyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("vorm: connect: %w", err)
		}
	}

	if cfg.readinessTimeout > 0 {
		if err := store.WaitForReady(ctx, cfg.readinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("vorm: engine not ready: %w", err)
		}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Engine{
		store:             store,
		log:               cfg.logger,
		obs:               obs,
		ids:               ident.NewCache(cfg.idCacheSize),
		defaultLimit:      cfg.queryLimit,
		fusionConcurrency: cfg.fusionConcurrency,
	}, nil
}

// OpenFromEnv loads the YAML config selected by the ENV variable, builds
// the matching logger and opens the engine.
func OpenFromEnv(ctx context.Context) (*Engine, error) {
	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		return nil, fmt.Errorf("vorm: load config: %w", err)
	}
	log, err := logger.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("vorm: build logger: %w", err)
	}
	return Open(ctx,
		WithAddrs(cfg.Engine.Addrs...),
		WithAuth(cfg.Engine.Username, cfg.Engine.Password),
		WithDB(cfg.Engine.DB),
		WithKeyPrefix(cfg.Engine.KeyPrefix),
		WithReadinessTimeout(time.Duration(cfg.Engine.ReadinessTimeout)*time.Second),
		WithDefaultLimit(cfg.Query.DefaultLimit),
		WithIDCacheSize(cfg.Query.IDCacheSize),
		WithFusionConcurrency(cfg.Query.FusionConcurrency),
		WithLogger(log),
	)
}

// CreateCollection creates the engine collection for a schema. Creating
// an existing collection is a no-op.
func (e *Engine) CreateCollection(ctx context.Context, s *Schema) error {
	start := time.Now()
	def := s.collectionDef()
	err := e.store.CreateCollection(ctx, &def)
	e.obs.observe("create_collection", start, err)
	return err
}

// DropCollection drops a schema's collection together with its data.
func (e *Engine) DropCollection(ctx context.Context, s *Schema) error {
	start := time.Now()
	err := e.store.DropCollection(ctx, s.name)
	e.obs.observe("drop_collection", start, err)
	return err
}

// NewSession returns a unit-of-work bound to this engine.
func (e *Engine) NewSession() *Session {
	return &Session{eng: e}
}

// Ping checks engine connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Close releases the underlying connection.
func (e *Engine) Close() {
	e.store.Close()
}

func (e *Engine) logger() *zap.Logger {
	if e.log == nil {
		return zap.NewNop()
	}
	return e.log
}

// loggerFrom prefers the configured logger and falls back to one carried
// in the context, so per-request loggers reach the read-path warnings
// even when the engine was opened without WithLogger.
func (e *Engine) loggerFrom(ctx context.Context) *zap.Logger {
	if e.log != nil {
		return e.log
	}
	return logger.FromContext(ctx)
}
