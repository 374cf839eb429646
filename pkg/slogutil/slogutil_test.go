package slogutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/deepworx/go-commerceauth/pkg/ctxutil"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("Level = %q, want %q", cfg.Level, "info")
	}
	if cfg.Format != "text" {
		t.Errorf("Format = %q, want %q", cfg.Format, "text")
	}
	if cfg.Output != "stderr" {
		t.Errorf("Output = %q, want %q", cfg.Output, "stderr")
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "default config",
			cfg:     DefaultConfig(),
			wantErr: nil,
		},
		{
			name:    "debug level json format",
			cfg:     Config{Level: "debug", Format: "json"},
			wantErr: nil,
		},
		{
			name:    "warn level",
			cfg:     Config{Level: "warn", Format: "text"},
			wantErr: nil,
		},
		{
			name:    "warning alias",
			cfg:     Config{Level: "warning", Format: "text"},
			wantErr: nil,
		},
		{
			name:    "error level",
			cfg:     Config{Level: "error", Format: "json"},
			wantErr: nil,
		},
		{
			name:    "case insensitive level",
			cfg:     Config{Level: "DEBUG", Format: "TEXT"},
			wantErr: nil,
		},
		{
			name:    "invalid level",
			cfg:     Config{Level: "trace", Format: "text"},
			wantErr: ErrInvalidLevel,
		},
		{
			name:    "invalid format",
			cfg:     Config{Level: "info", Format: "xml"},
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "empty level",
			cfg:     Config{Level: "", Format: "text"},
			wantErr: ErrInvalidLevel,
		},
		{
			name:    "empty format",
			cfg:     Config{Level: "info", Format: ""},
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "stdout output",
			cfg:     Config{Level: "info", Format: "json", Output: "stdout"},
			wantErr: nil,
		},
		{
			name:    "invalid output",
			cfg:     Config{Level: "info", Format: "text", Output: "syslog"},
			wantErr: ErrInvalidOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Setup(tt.cfg)

			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Setup() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Errorf("Setup() unexpected error: %v", err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    slog.Level
		wantErr error
	}{
		{"debug", slog.LevelDebug, nil},
		{"DEBUG", slog.LevelDebug, nil},
		{"Debug", slog.LevelDebug, nil},
		{"info", slog.LevelInfo, nil},
		{"INFO", slog.LevelInfo, nil},
		{"warn", slog.LevelWarn, nil},
		{"WARN", slog.LevelWarn, nil},
		{"warning", slog.LevelWarn, nil},
		{"WARNING", slog.LevelWarn, nil},
		{"error", slog.LevelError, nil},
		{"ERROR", slog.LevelError, nil},
		{"trace", 0, ErrInvalidLevel},
		{"", 0, ErrInvalidLevel},
		{"invalid", 0, ErrInvalidLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := parseLevel(tt.input)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("parseLevel(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Errorf("parseLevel(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  string
		wantErr error
	}{
		{"text", nil},
		{"TEXT", nil},
		{"Text", nil},
		{"json", nil},
		{"JSON", nil},
		{"Json", nil},
		{"xml", ErrInvalidFormat},
		{"", ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			handler, err := newHandler(io.Discard, tt.format, slog.LevelInfo)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("newHandler(%q) error = %v, want %v", tt.format, err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Errorf("newHandler(%q) unexpected error: %v", tt.format, err)
			}
			if handler == nil {
				t.Errorf("newHandler(%q) returned nil handler", tt.format)
			}
		})
	}
}

func TestNewWithWriter_ContextAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	ctx := ctxutil.WithRequestID(context.Background(), "req-42")
	ctx = ctxutil.WithPrincipal(ctx, ctxutil.Principal{Username: "buyer01", ClientID: "client-1"})
	logger.With(slog.String("component", "test")).InfoContext(ctx, "token verified")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log record: %v", err)
	}
	if rec["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want %q", rec["request_id"], "req-42")
	}
	if rec["client_id"] != "client-1" {
		t.Errorf("client_id = %v, want %q", rec["client_id"], "client-1")
	}
	if rec["component"] != "test" {
		t.Errorf("component = %v, want %q", rec["component"], "test")
	}
}

func TestNewWithWriter_NoContextValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	logger.InfoContext(context.Background(), "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log record: %v", err)
	}
	if _, ok := rec["request_id"]; ok {
		t.Error("request_id present without a request ID in context")
	}
	if _, ok := rec["client_id"]; ok {
		t.Error("client_id present without a principal in context")
	}
}

func TestNewWithWriter_Level(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "warn", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buf.String())
	}
}
