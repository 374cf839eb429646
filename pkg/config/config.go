// Package config loads the commerceauth configuration with koanf.
//
// Sources are applied in order: struct defaults, an optional TOML file,
// COMMERCEAUTH_* environment variables, then file:// secret references.
// Environment variable names use "__" between nesting levels, e.g.
// COMMERCEAUTH_CACHE__REDIS__ADDR sets cache.redis.addr.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/deepworx/go-commerceauth/pkg/cache"
	"github.com/deepworx/go-commerceauth/pkg/postgres"
	"github.com/deepworx/go-commerceauth/pkg/remote"
	"github.com/deepworx/go-commerceauth/pkg/slogutil"
	"github.com/deepworx/go-commerceauth/pkg/telemetry"
)

const (
	delim     = "."
	envPrefix = "COMMERCEAUTH_"
)

// Cache backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the complete configuration.
type Config struct {
	Log       slogutil.Config  `koanf:"log"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	Remote    remote.Config    `koanf:"remote"`
	Cache     CacheConfig      `koanf:"cache"`
}

// CacheConfig selects and configures the validation cache backend.
type CacheConfig struct {
	// Backend is one of "memory", "redis" or "postgres".
	// Defaults to "memory".
	Backend string `koanf:"backend"`

	Memory   cache.MemoryConfig `koanf:"memory"`
	Redis    cache.RedisConfig  `koanf:"redis"`
	Postgres postgres.Config    `koanf:"postgres"`
}

// Default returns the configuration used when no source overrides a value.
func Default() Config {
	return Config{
		Log:       slogutil.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
		Remote:    remote.DefaultConfig(),
		Cache: CacheConfig{
			Backend: BackendMemory,
			Memory:  cache.DefaultMemoryConfig(),
			Redis:   cache.DefaultRedisConfig(),
		},
	}
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	environ func() []string
}

// WithEnviron overrides the environment source. Defaults to os.Environ.
func WithEnviron(environ func() []string) Option {
	return func(l *loader) {
		l.environ = environ
	}
}

// Load reads the configuration. path may be empty to skip the file.
func Load(path string, opts ...Option) (Config, error) {
	l := loader{environ: os.Environ}
	for _, opt := range opts {
		opt(&l)
	}

	k := koanf.New(delim)

	if err := k.Load(WithDefaults(Default()), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(delim, env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envKey,
		EnvironFunc:   l.environ,
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Load(FileResolver(k), nil); err != nil {
		return Config{}, fmt.Errorf("resolve file references: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps COMMERCEAUTH_CACHE__REDIS__ADDR to cache.redis.addr.
func envKey(k, v string) (string, any) {
	k = strings.ToLower(strings.TrimPrefix(k, envPrefix))
	return strings.ReplaceAll(k, "__", delim), v
}

// Validate checks the sections that have required fields.
func (c Config) Validate() error {
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("invalid remote config: %w", err)
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("invalid cache config: %w", cache.ErrAddrRequired)
		}
	case BackendPostgres:
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("invalid cache config: %w", postgres.ErrDSNRequired)
		}
	default:
		return fmt.Errorf("invalid cache config: %w: %q", ErrInvalidCacheBackend, c.Cache.Backend)
	}
	return nil
}
