package auth

import (
	"slices"
	"time"

	"github.com/deepworx/go-commerceauth/pkg/ctxutil"
	"github.com/deepworx/go-commerceauth/pkg/token"
)

// Identity is a verified token. It is only produced by a successful
// verification.
type Identity struct {
	tok *token.Token
}

// Token returns a copy of the verified claim set.
func (id *Identity) Token() token.Token { return *id.tok.Clone() }

func (id *Identity) Username() string    { return id.tok.Username }
func (id *Identity) ClientID() string    { return id.tok.ClientID }
func (id *Identity) UserType() string    { return id.tok.UserType }
func (id *Identity) APIURL() string      { return id.tok.APIURL }
func (id *Identity) AuthURL() string     { return id.tok.AuthURL }
func (id *Identity) KeyID() string       { return id.tok.KeyID }
func (id *Identity) RawToken() string    { return id.tok.Raw }
func (id *Identity) AnonOrderID() string { return id.tok.AnonOrderID }

func (id *Identity) ExpiresAt() time.Time { return id.tok.ExpiresAt }

// NotBefore returns the start of the validity window, or the zero time if
// the token has none.
func (id *Identity) NotBefore() time.Time { return id.tok.NotBefore }

// IsAnonymous reports whether the token belongs to an anonymous shopper.
func (id *Identity) IsAnonymous() bool { return id.tok.IsAnonymous() }

// IsPortalIssued reports whether the token was issued by the admin portal.
func (id *Identity) IsPortalIssued() bool { return id.tok.IsPortalIssued() }

// IsImpersonation reports whether the token acts on behalf of another user.
func (id *Identity) IsImpersonation() bool { return id.tok.IsImpersonation() }

// CommerceRole resolves the usrtype claim.
func (id *Identity) CommerceRole() (CommerceRole, error) {
	return ParseCommerceRole(id.tok.UserType)
}

// AvailableRoles returns the token's roles. The slice is a copy.
func (id *Identity) AvailableRoles() []string {
	return slices.Clone(id.tok.Roles)
}

// HasAnyRole reports whether the token carries at least one of roles.
// It is true for an empty list.
func (id *Identity) HasAnyRole(roles ...string) bool {
	return hasAnyRole(id.tok.Roles, roles)
}

// Principal summarizes the identity for request-scoped logging.
func (id *Identity) Principal() ctxutil.Principal {
	return ctxutil.Principal{
		Username: id.tok.Username,
		ClientID: id.tok.ClientID,
		UserType: id.tok.UserType,
		Roles:    slices.Clone(id.tok.Roles),
	}
}

func hasAnyRole(assigned, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if slices.Contains(assigned, r) {
			return true
		}
	}
	return false
}
