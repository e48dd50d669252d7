package provision

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/jbweber/herd/internal/provision"

type metrics struct {
	vmCreateCounter   metric.Int64Counter
	vmDestroyCounter  metric.Int64Counter
	rollbackCounter   metric.Int64Counter
	vmCreateDuration  metric.Float64Histogram
	vmDestroyDuration metric.Float64Histogram
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(instrumentationName)

	vmCreateCounter, err := meter.Int64Counter(
		"herd.vm.create",
		metric.WithDescription("Number of VM create operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vm create counter: %w", err)
	}

	vmDestroyCounter, err := meter.Int64Counter(
		"herd.vm.destroy",
		metric.WithDescription("Number of VM destroy operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vm destroy counter: %w", err)
	}

	rollbackCounter, err := meter.Int64Counter(
		"herd.vm.rollback",
		metric.WithDescription("Number of rollbacks after a failed VM create"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rollback counter: %w", err)
	}

	vmCreateDuration, err := meter.Float64Histogram(
		"herd.vm.create.duration",
		metric.WithDescription("Duration of VM create operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vm create histogram: %w", err)
	}

	vmDestroyDuration, err := meter.Float64Histogram(
		"herd.vm.destroy.duration",
		metric.WithDescription("Duration of VM destroy operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vm destroy histogram: %w", err)
	}

	return &metrics{
		vmCreateCounter:   vmCreateCounter,
		vmDestroyCounter:  vmDestroyCounter,
		rollbackCounter:   rollbackCounter,
		vmCreateDuration:  vmCreateDuration,
		vmDestroyDuration: vmDestroyDuration,
	}, nil
}

func (m *metrics) recordCreate(ctx context.Context, role string, outcome Outcome, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("outcome", string(outcome)),
	)
	m.vmCreateCounter.Add(ctx, 1, attrs)
	m.vmCreateDuration.Record(ctx, elapsed.Seconds(), attrs)

	if outcome == OutcomeRolledBack || outcome == OutcomeUncleanRollback {
		m.rollbackCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("role", role),
			attribute.Bool("clean", outcome == OutcomeRolledBack),
		))
	}
}

func (m *metrics) recordDestroy(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome)))
	m.vmDestroyCounter.Add(ctx, 1, attrs)
	m.vmDestroyDuration.Record(ctx, elapsed.Seconds(), attrs)
}
