package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// KeySource resolves the public key for a key ID.
type KeySource interface {
	PublicKey(ctx context.Context, keyID string) (jwk.Key, error)
}

// CertKeySource fetches single keys from the authority's cert endpoint and
// keeps them in a bounded LRU. Key IDs come from unverified tokens, so the
// cache size caps what a caller can make us hold.
type CertKeySource struct {
	baseURL string
	http    *http.Client
	keys    *lru.Cache[string, jwk.Key]
}

// NewCertKeySource creates a key source for GET {baseURL}/oauth/certs/{kid}.
func NewCertKeySource(baseURL string, httpClient *http.Client, size int) (*CertKeySource, error) {
	if size <= 0 {
		size = 256
	}
	keys, err := lru.New[string, jwk.Key](size)
	if err != nil {
		return nil, fmt.Errorf("create key cache: %w", err)
	}
	return &CertKeySource{baseURL: baseURL, http: httpClient, keys: keys}, nil
}

// PublicKey implements KeySource.
func (s *CertKeySource) PublicKey(ctx context.Context, keyID string) (jwk.Key, error) {
	if key, ok := s.keys.Get(keyID); ok {
		return key, nil
	}

	req, err := newRequest(ctx, http.MethodGet, s.baseURL, "/oauth/certs/"+url.PathEscape(keyID), "", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch public key %s: %w", keyID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			URL:        req.URL.Redacted(),
			Err:        ErrKeyNotFound,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read public key %s: %w", keyID, err)
	}
	key, err := jwk.ParseKey(body)
	if err != nil {
		return nil, fmt.Errorf("parse public key %s: %w", keyID, err)
	}

	s.keys.Add(keyID, key)
	return key, nil
}

// Len returns the number of memoized keys.
func (s *CertKeySource) Len() int { return s.keys.Len() }

// minRefreshInterval limits forced JWKS refreshes triggered by unknown key IDs.
const minRefreshInterval = time.Minute

// JWKSKeySource resolves keys from a JWKS document kept fresh in the
// background by a jwk.Cache.
type JWKSKeySource struct {
	cache   *jwk.Cache
	jwksURL string

	mu          sync.Mutex
	lastRefresh time.Time
}

// NewJWKSKeySource registers jwksURL with an auto-refreshing cache.
// The ctx controls the lifecycle of the background refresh goroutine.
// Returns error if the initial fetch fails.
func NewJWKSKeySource(ctx context.Context, jwksURL string, httpClient *http.Client) (*JWKSKeySource, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("create jwks key source: %w", ErrJWKSURLRequired)
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient(
		httprc.WithHTTPClient(httpClient),
	))
	if err != nil {
		return nil, fmt.Errorf("create jwk cache: %w", err)
	}

	if err := cache.Register(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("register jwks url %s: %w", jwksURL, err)
	}

	if _, err := cache.Lookup(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("initial jwks fetch from %s: %w", jwksURL, err)
	}

	return &JWKSKeySource{cache: cache, jwksURL: jwksURL}, nil
}

// PublicKey implements KeySource. An unknown key ID forces one refresh of
// the document, at most once per minRefreshInterval.
func (s *JWKSKeySource) PublicKey(ctx context.Context, keyID string) (jwk.Key, error) {
	set, err := s.cache.Lookup(ctx, s.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("lookup jwks: %w", err)
	}
	if key, ok := set.LookupKeyID(keyID); ok {
		return key, nil
	}

	if s.allowRefresh() {
		set, err = s.cache.Refresh(ctx, s.jwksURL)
		if err != nil {
			return nil, fmt.Errorf("refresh jwks: %w", err)
		}
		if key, ok := set.LookupKeyID(keyID); ok {
			return key, nil
		}
	}

	return nil, &StatusError{
		StatusCode: http.StatusNotFound,
		Method:     http.MethodGet,
		URL:        s.jwksURL,
		Err:        ErrKeyNotFound,
	}
}

// Shutdown stops the background refresh.
func (s *JWKSKeySource) Shutdown(ctx context.Context) error {
	return s.cache.Shutdown(ctx)
}

func (s *JWKSKeySource) allowRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastRefresh) < minRefreshInterval {
		return false
	}
	s.lastRefresh = time.Now()
	return true
}

// compile-time checks
var (
	_ KeySource = (*CertKeySource)(nil)
	_ KeySource = (*JWKSKeySource)(nil)
)
