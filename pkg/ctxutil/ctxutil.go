// Package ctxutil provides utility functions for storing and retrieving
// request-scoped values in context.Context.
package ctxutil

import "context"

// ctxKey is an unexported type for context keys to prevent collisions.
type ctxKey int

const (
	requestIDKey ctxKey = iota
	principalKey
)

// Principal summarizes the verified caller for logging and downstream calls.
type Principal struct {
	Username string
	ClientID string
	UserType string
	Roles    []string
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID from the context.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// WithPrincipal returns a new context with the principal set.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the principal from the context.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Username returns the username of the principal in the context.
func Username(ctx context.Context) (string, bool) {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return "", false
	}
	return p.Username, true
}

// ClientID returns the client ID of the principal in the context.
func ClientID(ctx context.Context) (string, bool) {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return "", false
	}
	return p.ClientID, true
}

// Roles returns the roles of the principal in the context.
func Roles(ctx context.Context) ([]string, bool) {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return nil, false
	}
	return p.Roles, true
}
