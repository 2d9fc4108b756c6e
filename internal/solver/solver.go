// Package solver serves firing solutions to the engine and the HTTP API. Solutions
// are deterministic, so identical requests are answered from an LRU cache.
package solver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"fdc/internal/ballistics"
)

const instrumentationName = "fdc/internal/solver"

// DefaultCacheSize is used when the configured size is zero.
const DefaultCacheSize = 512

type Service struct {
	cache  *lru.Cache[string, ballistics.FiringSolution]
	logger *slog.Logger

	solutions metric.Int64Counter
	hits      metric.Int64Counter
}

type Option func(*Service)

// WithLogger sets the logger for failed solutions.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New builds a solver with a cache of size entries. Metrics go to the meter, or the
// global provider when it is nil.
func New(size int, m metric.Meter, opts ...Option) (*Service, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, ballistics.FiringSolution](size)
	if err != nil {
		return nil, fmt.Errorf("creating solution cache: %w", err)
	}
	if m == nil {
		m = otel.Meter(instrumentationName)
	}
	s := &Service{cache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	s.solutions, err = m.Int64Counter(
		"fdc.solver.solutions",
		metric.WithDescription("Firing solutions computed, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating solutions counter: %w", err)
	}
	s.hits, err = m.Int64Counter(
		"fdc.solver.cache.hits",
		metric.WithDescription("Firing solutions answered from cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache hit counter: %w", err)
	}
	return s, nil
}

// Solve returns the solution for req. Each call returns its own copy.
func (s *Service) Solve(ctx context.Context, req ballistics.SolutionRequest) (ballistics.FiringSolution, error) {
	key, err := cacheKey(req)
	if err != nil {
		return ballistics.FiringSolution{}, err
	}
	if sol, ok := s.cache.Get(key); ok {
		s.hits.Add(ctx, 1)
		return clone(sol), nil
	}
	if err := req.Gun.Validate(); err != nil {
		return s.fail(ctx, req, fmt.Errorf("gun: %w", err))
	}
	if err := req.Target.Validate(); err != nil {
		return s.fail(ctx, req, fmt.Errorf("target: %w", err))
	}
	sol, err := ballistics.ComputeSolution(req)
	if err != nil {
		return s.fail(ctx, req, err)
	}
	s.solutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	s.cache.Add(key, sol)
	return clone(sol), nil
}

func (s *Service) fail(ctx context.Context, req ballistics.SolutionRequest, err error) (ballistics.FiringSolution, error) {
	kind := ErrorKind(err)
	s.solutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", kind)))
	s.logger.LogAttrs(ctx, slog.LevelInfo, "solution refused",
		slog.String("platform", string(req.Platform)),
		slog.String("projectile", req.Projectile),
		slog.Int("charge", req.Charge),
		slog.String("kind", kind),
		slog.Any("error", err))
	return ballistics.FiringSolution{}, err
}

// Len reports the number of cached solutions.
func (s *Service) Len() int { return s.cache.Len() }

// ErrorKind names a ballistics error for metrics and API error codes.
func ErrorKind(err error) string {
	var (
		ce *ballistics.InvalidCalibrationError
		oe *ballistics.OutOfEnvelopeError
		re *ballistics.RangeUnachievableError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ce):
		return "invalid_calibration"
	case errors.As(err, &oe):
		return "out_of_envelope"
	case errors.As(err, &re):
		return "range_unachievable"
	default:
		return "invalid_request"
	}
}

func cacheKey(req ballistics.SolutionRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("solution request: %w", err)
	}
	return string(b), nil
}

func clone(sol ballistics.FiringSolution) ballistics.FiringSolution {
	if sol.MRSI != nil {
		pair := *sol.MRSI
		sol.MRSI = &pair
	}
	sol.Trajectory.Points = append([]ballistics.TrajectoryPoint(nil), sol.Trajectory.Points...)
	return sol
}
