package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// MemoryConfig holds configuration for the in-process cache.
type MemoryConfig struct {
	// MaxEntries bounds the number of cached tokens.
	// Defaults to 100000 if zero.
	MaxEntries int64 `koanf:"max_entries"`
}

// DefaultMemoryConfig returns a MemoryConfig with sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{MaxEntries: 100_000}
}

// Memory is an in-process Cache backed by ristretto.
// Concurrent fills for the same key share one compute call.
type Memory struct {
	store  *ristretto.Cache[string, bool]
	group  singleflight.Group
	closed atomic.Bool
}

// NewMemory creates an in-process cache.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryConfig().MaxEntries
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}

	return &Memory{store: store}, nil
}

// GetOrAdd implements Cache. A ttl <= 0 stores the entry without expiry.
//
// Callers that join an in-flight fill receive its result, including its
// error.
func (m *Memory) GetOrAdd(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}

	if v, ok := m.store.Get(key); ok {
		RecordLookup(ctx, "memory", true)
		return v, nil
	}
	RecordLookup(ctx, "memory", false)

	v, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.store.Get(key); ok {
			return v, nil
		}

		valid, err := compute(ctx)
		if err != nil {
			return false, err
		}

		if ttl < 0 {
			ttl = 0
		}
		m.store.SetWithTTL(key, valid, 1, ttl)
		m.store.Wait()
		return valid, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Remove implements Cache.
func (m *Memory) Remove(_ context.Context, key string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.store.Del(key)
	return nil
}

// Close releases the cache's background goroutines.
func (m *Memory) Close() {
	if m.closed.CompareAndSwap(false, true) {
		m.store.Close()
	}
}

var _ Cache = (*Memory)(nil)
