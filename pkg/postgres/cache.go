package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/singleflight"

	"github.com/deepworx/go-commerceauth/pkg/cache"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS token_validations (
		key_hash   TEXT PRIMARY KEY,
		valid      BOOLEAN NOT NULL,
		expires_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS token_validations_expires_at_idx
		ON token_validations (expires_at)`,
}

const (
	selectValidation = `SELECT valid FROM token_validations
		WHERE key_hash = $1 AND (expires_at IS NULL OR expires_at > $2)`

	upsertValidation = `INSERT INTO token_validations (key_hash, valid, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key_hash) DO UPDATE
		SET valid = EXCLUDED.valid, expires_at = EXCLUDED.expires_at`

	deleteValidation = `DELETE FROM token_validations WHERE key_hash = $1`

	purgeValidations = `DELETE FROM token_validations
		WHERE expires_at IS NOT NULL AND expires_at <= $1`
)

// Querier is the subset of *pgxpool.Pool used by Cache.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Cache is a validation cache stored in the token_validations table.
// Rows are keyed by the SHA-256 digest of the token. Expired rows are
// ignored on read and removed by Purge.
type Cache struct {
	db    Querier
	now   func() time.Time
	group singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock sets the time source used for expiry. Defaults to time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a Cache on db. Run Migrate once before first use.
func NewCache(db Querier, opts ...CacheOption) *Cache {
	c := &Cache{db: db, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrAdd implements cache.Cache. A ttl <= 0 stores the row without expiry.
func (c *Cache) GetOrAdd(ctx context.Context, key string, ttl time.Duration, compute cache.ComputeFunc) (bool, error) {
	hash := cache.HashKey(key)

	var valid bool
	err := c.db.QueryRow(ctx, selectValidation, hash, c.now()).Scan(&valid)
	switch {
	case err == nil:
		cache.RecordLookup(ctx, "postgres", true)
		return valid, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return false, fmt.Errorf("load validation: %w", err)
	}
	cache.RecordLookup(ctx, "postgres", false)

	v, err, _ := c.group.Do(hash, func() (any, error) {
		valid, err := compute(ctx)
		if err != nil {
			return false, err
		}

		var expiresAt *time.Time
		if ttl > 0 {
			t := c.now().Add(ttl)
			expiresAt = &t
		}
		if _, err := c.db.Exec(ctx, upsertValidation, hash, valid, expiresAt); err != nil {
			return false, fmt.Errorf("store validation: %w", err)
		}
		return valid, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Remove implements cache.Cache.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if _, err := c.db.Exec(ctx, deleteValidation, cache.HashKey(key)); err != nil {
		return fmt.Errorf("remove validation: %w", err)
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	tag, err := c.db.Exec(ctx, purgeValidations, c.now())
	if err != nil {
		return 0, fmt.Errorf("purge validations: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ cache.Cache = (*Cache)(nil)
