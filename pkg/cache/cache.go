// Package cache provides the validation cache used by the verification
// engine: a TTL map from token to validity with get-or-compute semantics.
//
// Two backends live here. Memory keeps entries in process with ristretto.
// Redis shares entries between processes. A PostgreSQL backend is in
// package postgres.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Cache maps a key to a validity flag for a bounded time.
//
// GetOrAdd returns the cached value for key, or invokes compute and stores
// its result for ttl. A compute error is returned unchanged and nothing is
// stored. Remove of an absent key is not an error.
// Implementations must be safe for concurrent use.
type Cache interface {
	GetOrAdd(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (bool, error)) (bool, error)
	Remove(ctx context.Context, key string) error
}

// ComputeFunc produces the value stored by GetOrAdd.
type ComputeFunc = func(context.Context) (bool, error)

// HashKey returns the hex SHA-256 digest of key. Backends that persist
// entries outside the process store the digest, never the token itself.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

const meterName = "github.com/deepworx/go-commerceauth/pkg/cache"

var (
	lookupsOnce    sync.Once
	lookupsCounter metric.Int64Counter
)

// RecordLookup counts one cache lookup for backend as a hit or a miss.
func RecordLookup(ctx context.Context, backend string, hit bool) {
	lookupsOnce.Do(func() {
		c, err := otel.Meter(meterName).Int64Counter(
			"auth.validation_cache.lookups",
			metric.WithDescription("Validation cache lookups by backend and result"),
			metric.WithUnit("{lookup}"),
		)
		if err != nil {
			otel.Handle(err)
			return
		}
		lookupsCounter = c
	})
	if lookupsCounter == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	lookupsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("result", result),
	))
}
