// Package shutdown collects cleanup handlers for caches, pools, and
// telemetry providers and runs them when the process stops.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultShutdownTimeout is the default time allowed for graceful shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// Handler is called during shutdown with the provided context.
type Handler func(ctx context.Context) error

// Registry holds shutdown handlers. The zero value is ready to use.
type Registry struct {
	mu       sync.Mutex
	handlers []Handler
}

// Register adds a handler. Handlers run in LIFO order.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Len reports the number of pending handlers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Shutdown runs and clears all handlers in LIFO order.
// Returns a combined error if any handler fails.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	handlers := r.handlers
	r.handlers = nil
	r.mu.Unlock()

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		if err := handlers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WaitForSignal blocks until SIGINT, SIGTERM, or ctx cancellation, then runs
// Shutdown with timeout as the handler deadline.
func (r *Registry) WaitForSignal(ctx context.Context, timeout time.Duration) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return r.Shutdown(shutdownCtx)
}

var std Registry

// Register adds a handler to the process-wide registry.
func Register(h Handler) { std.Register(h) }

// Shutdown runs the process-wide registry.
func Shutdown(ctx context.Context) error { return std.Shutdown(ctx) }

// WaitForSignal waits on the process-wide registry with DefaultShutdownTimeout.
func WaitForSignal(ctx context.Context) error {
	return std.WaitForSignal(ctx, DefaultShutdownTimeout)
}

// WaitForSignalWithTimeout waits on the process-wide registry.
func WaitForSignalWithTimeout(ctx context.Context, timeout time.Duration) error {
	return std.WaitForSignal(ctx, timeout)
}
