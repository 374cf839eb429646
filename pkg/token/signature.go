package token

import (
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
)

// VerifySignature checks the signature of raw against key using the
// algorithm named in the token header. Only asymmetric algorithms are
// accepted since the key comes from a public key endpoint.
func VerifySignature(raw string, key jwk.Key) error {
	msg, err := jws.ParseString(raw)
	if err != nil {
		return fmt.Errorf("verify signature: %w: %v", ErrMalformedToken, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return fmt.Errorf("verify signature: %w: expected one signature, got %d", ErrMalformedToken, len(sigs))
	}

	alg, ok := sigs[0].ProtectedHeaders().Algorithm()
	if !ok {
		return fmt.Errorf("verify signature: %w: missing alg header", ErrSignatureVerification)
	}
	if !isAsymmetric(alg) {
		return fmt.Errorf("verify signature: %w: algorithm %s not allowed", ErrSignatureVerification, alg)
	}

	if _, err := jws.Verify([]byte(raw), jws.WithKey(alg, key)); err != nil {
		return fmt.Errorf("verify signature: %w", ErrSignatureVerification)
	}
	return nil
}

func isAsymmetric(alg jwa.SignatureAlgorithm) bool {
	if alg == jwa.NoSignature() {
		return false
	}
	return !alg.IsSymmetric()
}
