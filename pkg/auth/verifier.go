// Package auth verifies commerce API bearer tokens and authorizes callers
// against the roles embedded in them.
//
// A Verifier is shared by all requests. Each request gets its own
// UserContext, which holds the verified identity once Verify succeeds.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/deepworx/go-commerceauth/pkg/cache"
	"github.com/deepworx/go-commerceauth/pkg/remote"
	"github.com/deepworx/go-commerceauth/pkg/token"
)

// ValidationTTL is how long a remote validation result is cached.
const ValidationTTL = 24 * time.Hour

const meterName = "github.com/deepworx/go-commerceauth/pkg/auth"

// Outcome values of the auth.verifications counter.
const (
	outcomeSuccess           = "success"
	outcomeMalformed         = "malformed"
	outcomeUnauthorized      = "unauthorized"
	outcomeInsufficientRoles = "insufficient_roles"
	outcomeError             = "error"
)

// RemoteClient is the identity authority as seen by the Verifier.
type RemoteClient interface {
	FetchActiveUser(ctx context.Context, tok string) (*remote.User, error)
	FetchPublicKey(ctx context.Context, keyID string) (jwk.Key, error)
}

// ClientFactory builds an API client bound to a verified token.
type ClientFactory func(*token.Token) *remote.APIClient

// Verifier checks bearer tokens. It is safe for concurrent use.
type Verifier struct {
	cache         cache.Cache
	client        RemoteClient
	now           func() time.Time
	logger        *slog.Logger
	newAPIClient  ClientFactory
	verifications metric.Int64Counter
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock sets the time source for validity window checks.
// Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = l
	}
}

// WithClientFactory sets how UserContext.Client builds API clients.
// Defaults to the remote client's NewAPIClient method when it has one.
func WithClientFactory(f ClientFactory) Option {
	return func(v *Verifier) {
		v.newAPIClient = f
	}
}

// NewVerifier creates a Verifier that caches validation results in c and
// consults client on a miss.
func NewVerifier(c cache.Cache, client RemoteClient, opts ...Option) (*Verifier, error) {
	if c == nil {
		return nil, fmt.Errorf("create verifier: %w", ErrCacheRequired)
	}
	if client == nil {
		return nil, fmt.Errorf("create verifier: %w", ErrClientRequired)
	}

	v := &Verifier{
		cache:  c,
		client: client,
		now:    time.Now,
		logger: slog.Default(),
	}
	if f, ok := client.(interface {
		NewAPIClient(*token.Token) *remote.APIClient
	}); ok {
		v.newAPIClient = f.NewAPIClient
	}
	for _, opt := range opts {
		opt(v)
	}

	counter, err := otel.Meter(meterName).Int64Counter(
		"auth.verifications",
		metric.WithDescription("Token verifications by outcome"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("register verification metric: %w", err)
	}
	v.verifications = counter

	return v, nil
}

// NewUserContext returns an unverified context for one request.
func (v *Verifier) NewUserContext() *UserContext {
	return &UserContext{verifier: v, state: unverified{}}
}

// Verify checks raw and, when requiredRoles is not empty, that the token
// carries at least one of them.
//
// Failures are ErrUnauthorized (also matching token.ErrMalformedToken when
// raw cannot be decoded), *InsufficientRolesError, or an error from the
// identity authority that is not about the credentials, such as
// *remote.APIError, returned unchanged.
func (v *Verifier) Verify(ctx context.Context, raw string, requiredRoles ...string) (*Identity, error) {
	id, outcome, err := v.verify(ctx, raw, requiredRoles)
	v.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return id, err
}

func (v *Verifier) verify(ctx context.Context, raw string, requiredRoles []string) (*Identity, string, error) {
	if raw == "" {
		return nil, outcomeUnauthorized, fmt.Errorf("verify token: %w: empty token", ErrUnauthorized)
	}

	tok, err := token.Parse(raw)
	if err != nil {
		return nil, outcomeMalformed, fmt.Errorf("verify token: %w: %w", ErrUnauthorized, err)
	}

	if reason := v.checkClaims(tok); reason != "" {
		v.logger.DebugContext(ctx, "token rejected", slog.String("reason", reason), slog.String("client_id", tok.ClientID))
		return nil, outcomeUnauthorized, fmt.Errorf("verify token: %w: %s", ErrUnauthorized, reason)
	}

	valid, err := v.validate(ctx, tok)
	if err != nil {
		return nil, outcomeError, err
	}
	if !valid {
		return nil, outcomeUnauthorized, fmt.Errorf("verify token: %w: rejected by identity authority", ErrUnauthorized)
	}

	if !hasAnyRole(tok.Roles, requiredRoles) {
		return nil, outcomeInsufficientRoles, &InsufficientRolesError{
			SufficientRoles: slices.Clone(requiredRoles),
			AssignedRoles:   slices.Clone(tok.Roles),
		}
	}

	v.logger.DebugContext(ctx, "token verified",
		slog.String("username", tok.Username),
		slog.String("client_id", tok.ClientID),
		slog.Bool("signed", tok.HasKeyID()),
	)
	return &Identity{tok: tok}, outcomeSuccess, nil
}

// checkClaims returns why tok is structurally unacceptable, or "".
func (v *Verifier) checkClaims(tok *token.Token) string {
	now := v.now()
	switch {
	case tok.ClientID == "":
		return "missing client id"
	case tok.ExpiresAt.IsZero():
		return "missing expiry"
	case now.Before(tok.NotBefore):
		return "not yet valid"
	case now.After(tok.ExpiresAt):
		return "expired"
	}
	return ""
}

// validation is the result of asking the identity authority about a token.
type validation int

const (
	validationValid validation = iota
	validationInvalid
	validationTransient
)

// validate returns the cached validity of tok, consulting the authority on
// a miss. A transient failure counts as invalid for this call only.
func (v *Verifier) validate(ctx context.Context, tok *token.Token) (bool, error) {
	var transient bool
	valid, err := v.cache.GetOrAdd(ctx, tok.Raw, ValidationTTL, func(ctx context.Context) (bool, error) {
		result, err := v.checkRemote(ctx, tok)
		if err != nil {
			return false, err
		}
		transient = result == validationTransient
		return result == validationValid, nil
	})
	if err != nil {
		return false, err
	}

	if transient {
		// The caller may have been cancelled; eviction must still happen.
		if err := v.cache.Remove(context.WithoutCancel(ctx), tok.Raw); err != nil {
			v.logger.ErrorContext(ctx, "failed to evict transient validation result", slog.String("error", err.Error()))
		}
	}
	return valid, nil
}

func (v *Verifier) checkRemote(ctx context.Context, tok *token.Token) (validation, error) {
	if !tok.HasKeyID() {
		user, err := v.client.FetchActiveUser(ctx, tok.Raw)
		if err != nil {
			return v.classify(ctx, err)
		}
		if user == nil || !user.Active {
			return validationInvalid, nil
		}
		return validationValid, nil
	}

	key, err := v.client.FetchPublicKey(ctx, tok.KeyID)
	if err != nil {
		return v.classify(ctx, err)
	}
	if err := token.VerifySignature(tok.Raw, key); err != nil {
		v.logger.DebugContext(ctx, "signature check failed", slog.String("key_id", tok.KeyID), slog.String("error", err.Error()))
		return validationInvalid, nil
	}
	return validationValid, nil
}

// classify sorts a remote failure. Logical errors are returned as-is, client
// errors are stable rejections and everything else is transient.
func (v *Verifier) classify(ctx context.Context, err error) (validation, error) {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return validationInvalid, err
	}

	var statusErr *remote.StatusError
	if errors.As(err, &statusErr) && statusErr.IsClientError() {
		v.logger.DebugContext(ctx, "identity authority rejected token", slog.Int("status", statusErr.StatusCode))
		return validationInvalid, nil
	}

	v.logger.WarnContext(ctx, "transient validation failure", slog.String("error", err.Error()))
	return validationTransient, nil
}
