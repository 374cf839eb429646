// Package slogutil provides configuration and setup utilities for slog.
package slogutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/deepworx/go-commerceauth/pkg/ctxutil"
)

// Config holds configuration for slog setup.
type Config struct {
	// Level is the minimum log level.
	// Valid values: "debug", "info", "warn", "warning", "error".
	// Default: "info"
	Level string `koanf:"level"`

	// Format is the output format.
	// Valid values: "text", "json".
	// Default: "text"
	Format string `koanf:"format"`

	// Output is the destination stream.
	// Valid values: "stderr", "stdout".
	// Default: "stderr"
	Output string `koanf:"output"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}

// Setup configures the global slog logger based on cfg.
// Returns error if Level, Format, or Output contains invalid values.
func Setup(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// New builds a logger from cfg without touching the global default.
// Records logged with a context carry its request ID.
func New(cfg Config) (*slog.Logger, error) {
	w, err := openOutput(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("setup slog: %w", err)
	}
	return NewWithWriter(cfg, w)
}

// NewWithWriter is New with an explicit destination. Output is ignored.
func NewWithWriter(cfg Config, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("setup slog: %w", err)
	}

	handler, err := newHandler(w, cfg.Format, level)
	if err != nil {
		return nil, fmt.Errorf("setup slog: %w", err)
	}

	return slog.New(contextHandler{Handler: handler}), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

func openOutput(s string) (io.Writer, error) {
	switch strings.ToLower(s) {
	case "stderr", "":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutput, s)
	}
}

func newHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
}

// contextHandler adds request_id and client_id from the record's context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctxutil.RequestID(ctx); ok {
		r.AddAttrs(slog.String("request_id", id))
	}
	if cid, ok := ctxutil.ClientID(ctx); ok && cid != "" {
		r.AddAttrs(slog.String("client_id", cid))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}
