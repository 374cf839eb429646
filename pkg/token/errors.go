package token

import "errors"

var (
	// ErrMalformedToken is returned when a token cannot be decoded into the
	// expected claim structure.
	ErrMalformedToken = errors.New("malformed token")

	// ErrSignatureVerification is returned when a token signature does not
	// match the supplied public key.
	ErrSignatureVerification = errors.New("signature verification failed")
)
