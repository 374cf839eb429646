package interceptor

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"connectrpc.com/connect"

	"github.com/deepworx/go-commerceauth/pkg/ctxutil"
)

// NewRecovery returns an interceptor that turns handler panics into
// connect.CodeInternal errors and logs them with a stack trace.
func NewRecovery(logger *slog.Logger) connect.Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &recovery{logger: logger}
}

type recovery struct {
	logger *slog.Logger
}

func (i *recovery) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = i.recoverPanic(ctx, req.Spec().Procedure, r)
			}
		}()
		return next(ctx, req)
	}
}

func (i *recovery) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *recovery) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = i.recoverPanic(ctx, conn.Spec().Procedure, r)
			}
		}()
		return next(ctx, conn)
	}
}

func (i *recovery) recoverPanic(ctx context.Context, procedure string, r any) *connect.Error {
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)

	attrs := []any{
		slog.String("procedure", procedure),
		slog.Any("panic", r),
		slog.String("stack", string(stack[:n])),
	}
	if username, ok := ctxutil.Username(ctx); ok {
		attrs = append(attrs, slog.String("username", username))
	}

	i.logger.ErrorContext(ctx, "panic recovered", attrs...)

	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}
