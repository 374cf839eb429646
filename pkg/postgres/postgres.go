// Package postgres stores verified-token validations in PostgreSQL so that
// several verifier processes share one validation cache. It owns the pgx pool
// behind that cache: connection tuning for short key lookups, query tracing,
// pool gauges, and creation of the token_validations table.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deepworx/go-commerceauth/pkg/shutdown"
)

// Pool sizing used when Config leaves a field at zero. Cache traffic is one
// indexed lookup or upsert per verification, so a small warm pool suffices.
const (
	defaultMaxConns          int32 = 10
	defaultMinConns          int32 = 2
	defaultMaxConnLifetime         = time.Hour
	defaultMaxConnIdleTime         = 30 * time.Minute
	defaultHealthCheckPeriod       = time.Minute
)

// Config selects the database holding token_validations and sizes the pool
// the cache queries through. Zero values fall back to the package defaults.
type Config struct {
	// DSN locates the cache database, e.g.
	// "postgres://auth:secret@db:5432/commerceauth?sslmode=disable".
	// A file:// reference is resolved by the config loader.
	DSN string `koanf:"dsn"`

	MaxConns int32 `koanf:"max_conns"`
	MinConns int32 `koanf:"min_conns"`

	// MaxConnLifetime recycles connections so failovers are picked up.
	MaxConnLifetime   time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `koanf:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `koanf:"health_check_period"`
}

// NewPool opens the validation cache database and checks it is reachable.
// Queries are traced with otelpgx and pool gauges are exported. The pool is
// closed by the process shutdown hooks, so callers do not close it.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("open validation cache db: %w", ErrDSNRequired)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse validation cache dsn: %w", err)
	}
	tunePool(poolCfg, cfg)
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open validation cache db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reach validation cache db: %w", err)
	}
	if err := registerPoolMetrics(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("register validation cache pool metrics: %w", err)
	}

	shutdown.Register(func(context.Context) error {
		pool.Close()
		return nil
	})
	return pool, nil
}

// Migrate creates the token_validations table and its expiry index. It is
// idempotent and runs all statements in one transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migrate token_validations: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate token_validations: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("migrate token_validations: commit: %w", err)
	}
	return nil
}

func tunePool(poolCfg *pgxpool.Config, cfg Config) {
	poolCfg.MaxConns = orDefault(cfg.MaxConns, defaultMaxConns)
	poolCfg.MinConns = orDefault(cfg.MinConns, defaultMinConns)
	poolCfg.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	poolCfg.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)
	poolCfg.HealthCheckPeriod = orDefault(cfg.HealthCheckPeriod, defaultHealthCheckPeriod)
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}
