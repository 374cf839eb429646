// Package interceptor builds the handler-side interceptor chain for Connect
// services that accept commerce API bearer tokens.
package interceptor

import (
	"errors"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"

	"github.com/deepworx/go-commerceauth/pkg/auth"
	"github.com/deepworx/go-commerceauth/pkg/connectrpc/authn"
)

// ErrVerifierRequired is returned by Build when no verifier is given.
var ErrVerifierRequired = errors.New("verifier is required")

// Options configures the interceptor chain.
type Options struct {
	authnOpts []authn.Option
	logger    *slog.Logger
	noTracing bool
}

// Option configures the interceptor builder.
type Option func(*Options)

// WithAuthn passes options to the authentication interceptor.
func WithAuthn(opts ...authn.Option) Option {
	return func(o *Options) {
		o.authnOpts = append(o.authnOpts, opts...)
	}
}

// WithLogger sets the logger used for recovered panics.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.logger = l
	}
}

// WithoutTracing leaves out the OpenTelemetry interceptor.
func WithoutTracing() Option {
	return func(o *Options) {
		o.noTracing = true
	}
}

// Build returns interceptors in order: recovery, otel, authn.
// Tracing wraps authentication so verification time shows up in the span.
func Build(v *auth.Verifier, opts ...Option) ([]connect.Interceptor, error) {
	if v == nil {
		return nil, fmt.Errorf("build interceptors: %w", ErrVerifierRequired)
	}

	o := &Options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	interceptors := make([]connect.Interceptor, 0, 3)
	interceptors = append(interceptors, NewRecovery(o.logger))

	if !o.noTracing {
		otelInterceptor, err := otelconnect.NewInterceptor()
		if err != nil {
			return nil, fmt.Errorf("create otel interceptor: %w", err)
		}
		interceptors = append(interceptors, otelInterceptor)
	}

	interceptors = append(interceptors, authn.NewInterceptor(v, o.authnOpts...))
	return interceptors, nil
}
