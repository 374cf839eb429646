package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// User is the subset of the authority's user resource needed for validation.
type User struct {
	ID       string `json:"ID"`
	Username string `json:"Username"`
	Active   bool   `json:"Active"`
}

// APIClient is an API client authenticated with one bearer token.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient creates a client that sends token on every request to baseURL.
func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	return &APIClient{baseURL: baseURL, token: token, http: httpClient}
}

// BaseURL returns the API root the client talks to.
func (c *APIClient) BaseURL() string { return c.baseURL }

// Token returns the bearer token the client is bound to.
func (c *APIClient) Token() string { return c.token }

// Do sends a JSON request and decodes the JSON response into out.
// out may be nil. Non-2xx responses are returned as *APIError or *StatusError.
func (c *APIClient) Do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.do(ctx, method, path, body, out)
	return err
}

// Me returns the user the token was issued to, or nil if the authority
// reports no user (204, or 404 with an empty body).
func (c *APIClient) Me(ctx context.Context) (*User, error) {
	var user *User
	status, err := c.do(ctx, http.MethodGet, "/v1/me", nil, &user)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound && statusErr.emptyBody {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return user, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	req, err := newRequest(ctx, method, c.baseURL, path, c.token, body)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return resp.StatusCode, nil
}
