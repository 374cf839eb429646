package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"go.opentelemetry.io/otel/attribute"

	"github.com/deepworx/go-commerceauth/pkg/token"
	"github.com/deepworx/go-commerceauth/pkg/tracing"
)

// Key source strategies.
const (
	KeySourceCerts = "certs"
	KeySourceJWKS  = "jwks"
)

// Config holds configuration for the remote validation client.
type Config struct {
	// BaseURL is the API root of the identity authority
	// (e.g., "https://api.example.com").
	// Required.
	BaseURL string `koanf:"base_url"`

	// HTTPTimeout is the timeout for each remote call.
	// Defaults to 10 seconds if zero.
	HTTPTimeout time.Duration `koanf:"http_timeout"`

	// KeySource selects how public keys are resolved: "certs" fetches one
	// key per key ID, "jwks" reads a JWKS document.
	// Defaults to "certs".
	KeySource string `koanf:"key_source"`

	// JWKSURL is the JWKS document URL. Required when KeySource is "jwks".
	JWKSURL string `koanf:"jwks_url"`

	// KeyCacheSize bounds the number of memoized keys for the "certs" source.
	// Defaults to 256 if zero.
	KeyCacheSize int `koanf:"key_cache_size"`
}

// DefaultConfig returns a Config with sensible defaults.
// BaseURL must be set by the caller.
func DefaultConfig() Config {
	return Config{
		HTTPTimeout:  10 * time.Second,
		KeySource:    KeySourceCerts,
		KeyCacheSize: 256,
	}
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLRequired
	}
	switch c.KeySource {
	case "", KeySourceCerts:
	case KeySourceJWKS:
		if c.JWKSURL == "" {
			return ErrJWKSURLRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKeySource, c.KeySource)
	}
	return nil
}

// Client is the HTTP implementation of the remote validation capability.
type Client struct {
	baseURL string
	http    *http.Client
	keys    KeySource
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithKeySource overrides the key source selected by Config.KeySource.
func WithKeySource(ks KeySource) Option {
	return func(c *Client) {
		c.keys = ks
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the authority at cfg.BaseURL.
// The ctx controls the lifecycle of the JWKS refresh goroutine when the
// "jwks" key source is selected.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("create remote client: %w", err)
	}

	c := &Client{baseURL: cfg.BaseURL, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		timeout := cfg.HTTPTimeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		c.http = cleanhttp.DefaultPooledClient()
		c.http.Timeout = timeout
	}

	if c.keys == nil {
		ks, err := newKeySource(ctx, cfg, c.http)
		if err != nil {
			return nil, fmt.Errorf("create remote client: %w", err)
		}
		c.keys = ks
	}

	return c, nil
}

func newKeySource(ctx context.Context, cfg Config, hc *http.Client) (KeySource, error) {
	if cfg.KeySource == KeySourceJWKS {
		return NewJWKSKeySource(ctx, cfg.JWKSURL, hc)
	}
	return NewCertKeySource(cfg.BaseURL, hc, cfg.KeyCacheSize)
}

// FetchActiveUser returns the user behind token, or nil if there is none.
func (c *Client) FetchActiveUser(ctx context.Context, tok string) (*User, error) {
	return tracing.WithSpanResult(ctx, "remote.fetch_active_user", func(ctx context.Context) (*User, error) {
		user, err := NewAPIClient(c.baseURL, tok, c.http).Me(ctx)
		if err != nil {
			c.logger.DebugContext(ctx, "active user lookup failed", slog.String("error", err.Error()))
			return nil, fmt.Errorf("fetch active user: %w", err)
		}
		return user, nil
	})
}

// FetchPublicKey returns the public key for keyID.
func (c *Client) FetchPublicKey(ctx context.Context, keyID string) (jwk.Key, error) {
	return tracing.WithSpanResult(ctx, "remote.fetch_public_key", func(ctx context.Context) (jwk.Key, error) {
		key, err := c.keys.PublicKey(ctx, keyID)
		if err != nil {
			return nil, fmt.Errorf("fetch public key: %w", err)
		}
		return key, nil
	}, attribute.String("auth.key_id", keyID))
}

// NewAPIClient builds an API client bound to a verified token. The token's
// API URL is used when present, the configured BaseURL otherwise.
func (c *Client) NewAPIClient(tok *token.Token) *APIClient {
	baseURL := c.baseURL
	if tok.APIURL != "" {
		baseURL = tok.APIURL
	}
	return NewAPIClient(baseURL, tok.Raw, c.http)
}

// Shutdown releases background resources held by the key source.
func (c *Client) Shutdown(ctx context.Context) error {
	if s, ok := c.keys.(interface{ Shutdown(context.Context) error }); ok {
		return s.Shutdown(ctx)
	}
	return nil
}
