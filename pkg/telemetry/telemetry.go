// Package telemetry wires OpenTelemetry tracing, metrics, and logging for
// token verification. Exporters are selected through OTEL_* environment
// variables.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/deepworx/go-commerceauth/pkg/shutdown"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	logglobal "go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds the configuration for OpenTelemetry setup.
type Config struct {
	// Enabled turns on provider installation. When false, Setup leaves the
	// global no-op providers in place.
	Enabled bool `koanf:"enabled"`

	// ServiceName is reported as service.name.
	ServiceName string `koanf:"service_name"`

	// ServiceVersion is reported as service.version.
	ServiceVersion string `koanf:"service_version"`
}

// DefaultConfig returns a disabled Config named after the module.
func DefaultConfig() Config {
	return Config{
		ServiceName: "commerceauth",
	}
}

// Setup installs global tracer, meter, and logger providers and registers
// their shutdown with the shutdown package.
func Setup(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		return nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build resource: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tp, err := newTracerProvider(ctx, res)
	if err != nil {
		return fmt.Errorf("create tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)

	mp, err := newMeterProvider(ctx, res)
	if err != nil {
		return errors.Join(fmt.Errorf("create meter provider: %w", err), tp.Shutdown(ctx))
	}
	otel.SetMeterProvider(mp)

	lp, err := newLoggerProvider(ctx, res)
	if err != nil {
		return errors.Join(fmt.Errorf("create logger provider: %w", err), tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	logglobal.SetLoggerProvider(lp)

	shutdown.Register(func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	})

	return nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithHost(),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}

func newTracerProvider(ctx context.Context, res *resource.Resource) (*trace.TracerProvider, error) {
	exp, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return nil, err
	}
	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exp),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource) (*metric.MeterProvider, error) {
	reader, err := autoexport.NewMetricReader(ctx)
	if err != nil {
		return nil, err
	}
	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(reader),
	), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource) (*log.LoggerProvider, error) {
	exp, err := autoexport.NewLogExporter(ctx)
	if err != nil {
		return nil, err
	}
	return log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(exp)),
	), nil
}
