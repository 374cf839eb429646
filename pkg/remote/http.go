package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/deepworx/go-commerceauth/pkg/ctxutil"
)

const (
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 64 << 10
)

func newRequest(ctx context.Context, method, baseURL, path, bearer string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	url := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	reqID, ok := ctxutil.RequestID(ctx)
	if !ok {
		reqID = uuid.NewString()
	}
	req.Header.Set(requestIDHeader, reqID)

	return req, nil
}

// decodeError converts a non-2xx response into *APIError or *StatusError.
// Authentication failures and server errors are never treated as domain
// errors, whatever their payload.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.Redacted(),
		emptyBody:  len(bytes.TrimSpace(body)) == 0,
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode >= 500:
		return statusErr
	}

	var envelope struct {
		Errors []ErrorDetail `json:"Errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Errors) == 0 {
		return statusErr
	}

	return &APIError{StatusCode: resp.StatusCode, Errors: envelope.Errors}
}
