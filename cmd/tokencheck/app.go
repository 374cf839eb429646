package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deepworx/go-commerceauth/pkg/auth"
	"github.com/deepworx/go-commerceauth/pkg/cache"
	"github.com/deepworx/go-commerceauth/pkg/config"
	"github.com/deepworx/go-commerceauth/pkg/postgres"
	"github.com/deepworx/go-commerceauth/pkg/remote"
	"github.com/deepworx/go-commerceauth/pkg/shutdown"
	"github.com/deepworx/go-commerceauth/pkg/slogutil"
	"github.com/deepworx/go-commerceauth/pkg/telemetry"
)

var errPurgeUnsupported = errors.New("purge requires the postgres cache backend")

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	cache    cache.Cache
	verifier *auth.Verifier
}

// setup loads configuration and wires every dependency. Resources that need
// cleanup are registered with the shutdown package.
func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := slogutil.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	if err := telemetry.Setup(ctx, cfg.Telemetry); err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	c, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	client, err := remote.NewClient(ctx, cfg.Remote, remote.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	shutdown.Register(client.Shutdown)

	v, err := auth.NewVerifier(c, client, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, cache: c, verifier: v}, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return cache.NewRedis(client, cfg.Redis.KeyPrefix), nil

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		return postgres.NewCache(pool), nil

	default:
		m, err := cache.NewMemory(cfg.Memory)
		if err != nil {
			return nil, err
		}
		shutdown.Register(func(context.Context) error {
			m.Close()
			return nil
		})
		return m, nil
	}
}
