package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/deepworx/go-commerceauth/pkg/remote"
)

// userState is the verification state of a UserContext:
// unverified or verified.
type userState interface {
	identity() (*Identity, error)
}

type unverified struct{}

func (unverified) identity() (*Identity, error) { return nil, ErrNoContext }

type verified struct {
	id *Identity
}

func (s verified) identity() (*Identity, error) { return s.id, nil }

// UserContext holds the outcome of verifying one request's token.
// It is not safe for concurrent use.
type UserContext struct {
	verifier *Verifier
	state    userState
	client   *remote.APIClient
}

// Verify verifies raw and, on success, makes its claims available.
// A failed verification leaves the previous state unchanged. A later
// successful verification replaces the stored identity.
func (uc *UserContext) Verify(ctx context.Context, raw string, requiredRoles ...string) error {
	id, err := uc.verifier.Verify(ctx, raw, requiredRoles...)
	if err != nil {
		return err
	}
	uc.state = verified{id: id}
	return nil
}

// VerifyHeader verifies the bearer token in h's Authorization header.
func (uc *UserContext) VerifyHeader(ctx context.Context, h http.Header, requiredRoles ...string) error {
	return uc.Verify(ctx, BearerToken(h), requiredRoles...)
}

// BearerToken returns the token of a "Bearer" Authorization header, or ""
// if there is none.
func BearerToken(h http.Header) string {
	scheme, tok, ok := strings.Cut(h.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// Identity returns the verified identity.
func (uc *UserContext) Identity() (*Identity, error) {
	return uc.state.identity()
}

// Client returns an API client bound to the verified token. It is built on
// first use and reused for the lifetime of the UserContext, including
// after a later Verify.
func (uc *UserContext) Client() (*remote.APIClient, error) {
	if uc.client != nil {
		return uc.client, nil
	}
	id, err := uc.Identity()
	if err != nil {
		return nil, err
	}
	if uc.verifier.newAPIClient == nil {
		return nil, ErrNoClientFactory
	}
	uc.client = uc.verifier.newAPIClient(id.tok)
	return uc.client, nil
}

func (uc *UserContext) CommerceRole() (CommerceRole, error) {
	id, err := uc.Identity()
	if err != nil {
		return "", err
	}
	return id.CommerceRole()
}

func (uc *UserContext) AvailableRoles() ([]string, error) {
	return claim(uc, (*Identity).AvailableRoles)
}

func (uc *UserContext) Username() (string, error) { return claim(uc, (*Identity).Username) }
func (uc *UserContext) ClientID() (string, error) { return claim(uc, (*Identity).ClientID) }
func (uc *UserContext) APIURL() (string, error)   { return claim(uc, (*Identity).APIURL) }
func (uc *UserContext) AuthURL() (string, error)  { return claim(uc, (*Identity).AuthURL) }

func (uc *UserContext) IsAnonymous() (bool, error)     { return claim(uc, (*Identity).IsAnonymous) }
func (uc *UserContext) IsPortalIssued() (bool, error)  { return claim(uc, (*Identity).IsPortalIssued) }
func (uc *UserContext) IsImpersonation() (bool, error) { return claim(uc, (*Identity).IsImpersonation) }

func (uc *UserContext) ExpiresAt() (time.Time, error) { return claim(uc, (*Identity).ExpiresAt) }
func (uc *UserContext) NotBefore() (time.Time, error) { return claim(uc, (*Identity).NotBefore) }

func claim[T any](uc *UserContext, get func(*Identity) T) (T, error) {
	id, err := uc.Identity()
	if err != nil {
		var zero T
		return zero, err
	}
	return get(id), nil
}
