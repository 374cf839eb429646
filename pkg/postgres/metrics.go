package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/deepworx/go-commerceauth/pkg/postgres"

type poolStats struct {
	idle     int32
	acquired int32
	max      int32
}

func statsOf(pool *pgxpool.Pool) func() poolStats {
	return func() poolStats {
		s := pool.Stat()
		return poolStats{idle: s.IdleConns(), acquired: s.AcquiredConns(), max: s.MaxConns()}
	}
}

var (
	stateIdle     = metric.WithAttributes(attribute.String("state", "idle"))
	stateAcquired = metric.WithAttributes(attribute.String("state", "acquired"))
)

// registerMetrics reports pool connections by state and the pool limit
// from a single callback so both gauges see the same snapshot.
func registerMetrics(meter metric.Meter, stats func() poolStats) error {
	conns, err := meter.Int64ObservableGauge(
		"db.pool.connections",
		metric.WithDescription("Connections in the validation cache pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("register connections metric: %w", err)
	}

	limit, err := meter.Int64ObservableGauge(
		"db.pool.max_connections",
		metric.WithDescription("Maximum configured connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("register max_connections metric: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(conns, int64(s.idle), stateIdle)
		o.ObserveInt64(conns, int64(s.acquired), stateAcquired)
		o.ObserveInt64(limit, int64(s.max))
		return nil
	}, conns, limit)
	if err != nil {
		return fmt.Errorf("register pool callback: %w", err)
	}
	return nil
}

func registerPoolMetrics(pool *pgxpool.Pool) error {
	return registerMetrics(otel.Meter(meterName), statsOf(pool))
}
