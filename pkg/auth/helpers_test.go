package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/deepworx/go-commerceauth/pkg/cache"
	"github.com/deepworx/go-commerceauth/pkg/remote"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// fakeRemote is a scriptable identity authority.
type fakeRemote struct {
	mu      sync.Mutex
	user    *remote.User
	userErr error
	keys    map[string]jwk.Key
	keyErr  error

	userCalls atomic.Int32
	keyCalls  atomic.Int32
}

func (f *fakeRemote) FetchActiveUser(context.Context, string) (*remote.User, error) {
	f.userCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, f.userErr
}

func (f *fakeRemote) FetchPublicKey(_ context.Context, keyID string) (jwk.Key, error) {
	f.keyCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keyErr != nil {
		return nil, f.keyErr
	}
	key, ok := f.keys[keyID]
	if !ok {
		return nil, &remote.StatusError{StatusCode: 404, Err: remote.ErrKeyNotFound}
	}
	return key, nil
}

func (f *fakeRemote) setUser(u *remote.User, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user, f.userErr = u, err
}

// recordingCache wraps a cache and records Remove calls.
type recordingCache struct {
	cache.Cache
	removeErr error
	removed   atomic.Int32
}

func (c *recordingCache) Remove(ctx context.Context, key string) error {
	c.removed.Add(1)
	if c.removeErr != nil {
		return c.removeErr
	}
	return c.Cache.Remove(ctx, key)
}

func newMemoryCache(t *testing.T) *cache.Memory {
	t.Helper()

	m, err := cache.NewMemory(cache.MemoryConfig{MaxEntries: 1000})
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func newTestVerifier(t *testing.T, c cache.Cache, client RemoteClient, opts ...Option) *Verifier {
	t.Helper()

	opts = append([]Option{WithClock(fixedClock)}, opts...)
	v, err := NewVerifier(c, client, opts...)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return v
}

// claims returns a valid claim set relative to testNow.
func claims(overrides gojwt.MapClaims) gojwt.MapClaims {
	c := gojwt.MapClaims{
		"usr":     "buyer01",
		"cid":     "client-1",
		"usrtype": "buyer",
		"role":    []string{"Shopper", "MeAdmin"},
		"exp":     testNow.Add(time.Hour).Unix(),
		"nbf":     testNow.Add(-time.Minute).Unix(),
		"iss":     "https://auth.example.com",
		"aud":     "https://api.example.com",
	}
	for k, v := range overrides {
		if v == nil {
			delete(c, k)
			continue
		}
		c[k] = v
	}
	return c
}

// mintKeyless mints a token without a key ID. Its signature is never
// checked locally.
func mintKeyless(t *testing.T, c gojwt.MapClaims) string {
	t.Helper()

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, c).SignedString([]byte("portal-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

type signingKey struct {
	kid  string
	priv *rsa.PrivateKey
	pub  jwk.Key
}

func newSigningKey(t *testing.T, kid string) signingKey {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	pub, err := jwk.Import(&priv.PublicKey)
	if err != nil {
		t.Fatalf("failed to import public key: %v", err)
	}
	return signingKey{kid: kid, priv: priv, pub: pub}
}

func (k signingKey) mint(t *testing.T, c gojwt.MapClaims) string {
	t.Helper()

	tok := gojwt.NewWithClaims(gojwt.SigningMethodRS256, c)
	tok.Header["kid"] = k.kid
	signed, err := tok.SignedString(k.priv)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()

	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want %v", err, ErrUnauthorized)
	}
}
