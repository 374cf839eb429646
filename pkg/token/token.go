// Package token decodes commerce API bearer tokens into their claim set.
//
// Decoding is structural only. Parse never checks signatures or validity
// windows; use VerifySignature for the cryptographic check.
package token

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// Claim names used by the identity authority.
const (
	ClaimUsername            = "usr"
	ClaimClientID            = "cid"
	ClaimUserType            = "usrtype"
	ClaimRole                = "role"
	ClaimAnonOrderID         = "orderid"
	ClaimCompanyInteropID    = "cmpid"
	ClaimImpersonatingUserID = "imp"
)

// Token is the claim set of a bearer token.
// Optional string claims are empty when absent.
type Token struct {
	Raw                 string
	KeyID               string
	Username            string
	ClientID            string
	UserType            string
	Roles               []string
	ExpiresAt           time.Time
	NotBefore           time.Time
	AnonOrderID         string
	CompanyInteropID    string
	ImpersonatingUserID string
	APIURL              string
	AuthURL             string
}

// Parse decodes raw into a Token. It returns an error wrapping
// ErrMalformedToken if raw is not a compact JWS or a claim has an
// unexpected type.
func Parse(raw string) (*Token, error) {
	msg, err := jws.ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w: %v", ErrMalformedToken, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, fmt.Errorf("parse token: %w: expected one signature, got %d", ErrMalformedToken, len(sigs))
	}

	tok, err := jwt.ParseInsecure([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w: %v", ErrMalformedToken, err)
	}

	// Private claims are read from the payload directly so that a JSON null
	// counts as absent.
	var claims map[string]any
	if err := json.Unmarshal(msg.Payload(), &claims); err != nil {
		return nil, fmt.Errorf("parse token: %w: %v", ErrMalformedToken, err)
	}

	t := &Token{Raw: raw}
	if headers := sigs[0].ProtectedHeaders(); headers != nil {
		t.KeyID, _ = headers.KeyID()
	}
	t.ExpiresAt, _ = tok.Expiration()
	t.NotBefore, _ = tok.NotBefore()
	t.AuthURL, _ = tok.Issuer()
	if aud, ok := tok.Audience(); ok && len(aud) > 0 {
		t.APIURL = aud[0]
	}

	fields := []struct {
		name string
		dst  *string
	}{
		{ClaimUsername, &t.Username},
		{ClaimClientID, &t.ClientID},
		{ClaimUserType, &t.UserType},
		{ClaimAnonOrderID, &t.AnonOrderID},
		{ClaimCompanyInteropID, &t.CompanyInteropID},
		{ClaimImpersonatingUserID, &t.ImpersonatingUserID},
	}
	for _, f := range fields {
		v, err := stringClaim(claims, f.name)
		if err != nil {
			return nil, fmt.Errorf("parse token: %w: %v", ErrMalformedToken, err)
		}
		*f.dst = v
	}

	roles, err := rolesClaim(claims)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w: %v", ErrMalformedToken, err)
	}
	t.Roles = roles

	return t, nil
}

// HasKeyID reports whether the token header names a signing key.
func (t *Token) HasKeyID() bool { return t.KeyID != "" }

// IsAnonymous reports whether the token was issued for an anonymous shopper.
func (t *Token) IsAnonymous() bool { return t.AnonOrderID != "" }

// IsPortalIssued reports whether the token was issued by the admin portal.
func (t *Token) IsPortalIssued() bool { return t.CompanyInteropID != "" }

// IsImpersonation reports whether the token was issued on behalf of another user.
func (t *Token) IsImpersonation() bool { return t.ImpersonatingUserID != "" }

// Clone returns a deep copy of t.
func (t *Token) Clone() *Token {
	c := *t
	c.Roles = slices.Clone(t.Roles)
	return &c
}

// stringClaim returns claim name as a string. Absent and null claims are "".
func stringClaim(claims map[string]any, name string) (string, error) {
	switch val := claims[name].(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("claim %s: unexpected type %T", name, val)
	}
}

// rolesClaim accepts a single role string or an array of role strings.
// Absent and null claims yield no roles.
func rolesClaim(claims map[string]any) ([]string, error) {
	var roles []string
	switch val := claims[ClaimRole].(type) {
	case nil:
	case string:
		roles = []string{val}
	case []any:
		roles = make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("claim %s: unexpected element type %T", ClaimRole, item)
			}
			roles = append(roles, s)
		}
	default:
		return nil, fmt.Errorf("claim %s: unexpected type %T", ClaimRole, val)
	}

	return unique(roles), nil
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
