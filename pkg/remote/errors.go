// Package remote talks to the commerce API identity authority: it looks up
// the active user behind a token and fetches the public keys tokens are
// signed with.
package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors for remote client configuration and key lookup.
var (
	// ErrBaseURLRequired is returned when BaseURL is empty.
	ErrBaseURLRequired = errors.New("base_url is required")

	// ErrJWKSURLRequired is returned when the jwks key source has no JWKSURL.
	ErrJWKSURLRequired = errors.New("jwks_url is required")

	// ErrInvalidKeySource is returned when KeySource names an unknown strategy.
	ErrInvalidKeySource = errors.New("invalid key source")

	// ErrKeyNotFound is returned, wrapped in a *StatusError, when no public
	// key exists for a key ID.
	ErrKeyNotFound = errors.New("public key not found")
)

// StatusError is returned when the authority answers with a non-success
// status that carries no domain error payload.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Err        error

	emptyBody bool
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote: %s %s: status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote: %s %s: status %d", e.Method, e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsClientError reports whether the status is below 500.
func (e *StatusError) IsClientError() bool { return e.StatusCode < 500 }

// ErrorDetail is one entry of the authority's error envelope.
type ErrorDetail struct {
	ErrorCode string `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// APIError is a logical error reported by the authority, e.g. a feature
// not enabled for the organization. It is not a statement about the
// validity of the credentials.
type APIError struct {
	StatusCode int
	Errors     []ErrorDetail
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("remote: api error (status %d)", e.StatusCode)
	}
	first := e.Errors[0]
	return fmt.Sprintf("remote: api error %s: %s (status %d)", first.ErrorCode, first.Message, e.StatusCode)
}
