package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "fdc/internal/engine"

// Metrics counts mission operations by outcome.
type Metrics struct {
	operations metric.Int64Counter
}

// NewMetrics registers the engine instruments on m. A nil meter uses the global
// provider, which is a no-op unless one is installed.
func NewMetrics(m metric.Meter) (*Metrics, error) {
	if m == nil {
		m = otel.Meter(instrumentationName)
	}
	ops, err := m.Int64Counter(
		"fdc.mission.operations",
		metric.WithDescription("Mission lifecycle operations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operations counter: %w", err)
	}
	return &Metrics{operations: ops}, nil
}

func (m *Metrics) record(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", Outcome(err)),
	))
}

// Outcome classifies an operation error for metrics and logs.
func Outcome(err error) string {
	var (
		gv *GuardViolationError
		na *NoAssetsAvailableError
		fb *ForbiddenError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &gv):
		return "guard_violation"
	case errors.As(err, &na):
		return "no_assets_available"
	case errors.As(err, &fb):
		return "forbidden"
	default:
		return "error"
	}
}
