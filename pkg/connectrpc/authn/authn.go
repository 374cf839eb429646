// Package authn authenticates Connect RPC requests with commerce API bearer
// tokens and enforces per-procedure role requirements.
package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/deepworx/go-commerceauth/pkg/auth"
	"github.com/deepworx/go-commerceauth/pkg/ctxutil"
	"github.com/deepworx/go-commerceauth/pkg/remote"
)

const requestIDHeader = "X-Request-ID"

// ConnectCoder allows errors to specify their Connect RPC error code.
type ConnectCoder interface {
	ConnectCode() connect.Code
}

type ctxKey struct{}

// UserContextFrom returns the verified user context stored by the interceptor.
func UserContextFrom(ctx context.Context) (*auth.UserContext, bool) {
	uc, ok := ctx.Value(ctxKey{}).(*auth.UserContext)
	return uc, ok
}

// IdentityFromContext returns the verified identity stored by the interceptor.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	uc, ok := UserContextFrom(ctx)
	if !ok {
		return nil, false
	}
	id, err := uc.Identity()
	return id, err == nil
}

// Option configures the interceptor.
type Option func(*interceptor)

// WithProcedureRoles sets the roles required per procedure
// (e.g. "/acme.orders.v1.OrderService/CancelOrder"). A caller must hold at
// least one of them. Procedures not listed accept any valid token.
func WithProcedureRoles(roles map[string][]string) Option {
	return func(i *interceptor) {
		for proc, r := range roles {
			i.roles[proc] = slices.Clone(r)
		}
	}
}

// WithPublicProcedures lists procedures served without authentication.
func WithPublicProcedures(procedures ...string) Option {
	return func(i *interceptor) {
		for _, p := range procedures {
			i.public[p] = struct{}{}
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(i *interceptor) {
		i.logger = l
	}
}

// NewInterceptor creates a Connect RPC interceptor that verifies the bearer
// token of every handler call. On success the *auth.UserContext is stored in
// the context, along with a ctxutil.Principal and the request ID.
//
// Errors are mapped to Connect codes:
//  1. context.Canceled, context.DeadlineExceeded → Canceled, DeadlineExceeded
//  2. auth.ErrUnauthorized → Unauthenticated
//  3. *auth.InsufficientRolesError → PermissionDenied
//  4. *remote.APIError → FailedPrecondition
//  5. Any other error → Internal with message "internal error"
func NewInterceptor(v *auth.Verifier, opts ...Option) connect.Interceptor {
	i := &interceptor{
		verifier: v,
		roles:    make(map[string][]string),
		public:   make(map[string]struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type interceptor struct {
	verifier *auth.Verifier
	roles    map[string][]string
	public   map[string]struct{}
	logger   *slog.Logger
}

func (i *interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}

		ctx, err := i.authenticate(ctx, req.Spec().Procedure, req.Header())
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.authenticate(ctx, conn.Spec().Procedure, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *interceptor) authenticate(ctx context.Context, procedure string, headers http.Header) (context.Context, error) {
	ctx = ensureRequestID(ctx, headers)

	if _, ok := i.public[procedure]; ok {
		return ctx, nil
	}

	uc := i.verifier.NewUserContext()
	if err := uc.VerifyHeader(ctx, headers, i.roles[procedure]...); err != nil {
		cerr := mapError(err)
		i.logger.InfoContext(ctx, "request rejected",
			slog.String("procedure", procedure),
			slog.String("code", cerr.Code().String()),
			slog.String("error", err.Error()),
		)
		return nil, cerr
	}

	id, err := uc.Identity()
	if err != nil {
		return nil, mapError(err)
	}
	ctx = ctxutil.WithPrincipal(ctx, id.Principal())
	return context.WithValue(ctx, ctxKey{}, uc), nil
}

func ensureRequestID(ctx context.Context, headers http.Header) context.Context {
	if _, ok := ctxutil.RequestID(ctx); ok {
		return ctx
	}
	id := headers.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	return ctxutil.WithRequestID(ctx, id)
}

func mapError(err error) *connect.Error {
	if errors.Is(err, context.Canceled) {
		return connect.NewError(connect.CodeCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}

	// Only the coded error's own message reaches the caller; wrapped detail
	// stays in the server log.
	var coder ConnectCoder
	if errors.As(err, &coder) {
		if coded, ok := coder.(error); ok {
			return connect.NewError(coder.ConnectCode(), coded)
		}
		return connect.NewError(coder.ConnectCode(), errors.New(coder.ConnectCode().String()))
	}

	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return connect.NewError(connect.CodeFailedPrecondition, err)
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}
