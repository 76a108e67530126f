package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/store"
)

// ActivationMetrics holds the activation engine's OpenTelemetry instruments.
type ActivationMetrics struct {
	Attempts       metric.Int64Counter
	Success        metric.Int64Counter
	Failures       metric.Int64Counter
	WriteConflicts metric.Int64Counter
	Duration       metric.Float64Histogram
}

// NewActivationMetrics registers the activation instruments on the meter.
func NewActivationMetrics(meter metric.Meter) (*ActivationMetrics, error) {
	attempts, err := meter.Int64Counter(
		"license_verification_attempts_total",
		metric.WithDescription("Total number of verification and enrollment attempts"),
	)
	if err != nil {
		return nil, err
	}

	success, err := meter.Int64Counter(
		"license_verification_success_total",
		metric.WithDescription("Total number of successful verifications"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"license_verification_failures_total",
		metric.WithDescription("Total number of rejected or failed verifications"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter(
		"store_write_conflicts_total",
		metric.WithDescription("Conditional writes rejected because the document version was stale"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"license_verification_duration_seconds",
		metric.WithDescription("Verification request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ActivationMetrics{
		Attempts:       attempts,
		Success:        success,
		Failures:       failures,
		WriteConflicts: conflicts,
		Duration:       duration,
	}, nil
}

// recordVerify records outcome metrics for one engine call. Safe to call
// with nil metrics (observability disabled).
func (s *activationService) recordVerify(ctx context.Context, flow string, result *VerifyResult, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	flowAttr := attribute.String("flow", flow)
	s.metrics.Attempts.Add(ctx, 1, metric.WithAttributes(flowAttr))
	s.metrics.Duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(flowAttr))

	if err != nil {
		s.metrics.Failures.Add(ctx, 1, metric.WithAttributes(
			flowAttr,
			attribute.String("reason", apierrors.AsAPIError(err).ErrorCode),
		))
		return
	}

	s.metrics.Success.Add(ctx, 1, metric.WithAttributes(
		flowAttr,
		attribute.Bool("first_use", result.FirstUse),
	))
}

// recordConflict counts conditional-write rejections separately from other
// store failures; they are the expected signature of concurrent enrollment.
func (s *activationService) recordConflict(ctx context.Context, err error) {
	if s.metrics == nil {
		return
	}
	if errors.Is(err, store.ErrVersionConflict) {
		s.metrics.WriteConflicts.Add(ctx, 1)
	}
}
