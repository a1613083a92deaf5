package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/xerrors"
)

// Metrics records run statistics. A nil *Metrics discards everything.
type Metrics struct {
	pagesCaptured metric.Int64Counter
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	pagesCaptured, err := meter.Int64Counter("lmsdownloader_pages_captured",
		metric.WithDescription("Pages captured from LMS resources."))
	if err != nil {
		return nil, xerrors.Errorf("failed to create counter: %w", err)
	}
	runs, err := meter.Int64Counter("lmsdownloader_runs",
		metric.WithDescription("Download runs by outcome."))
	if err != nil {
		return nil, xerrors.Errorf("failed to create counter: %w", err)
	}
	runDuration, err := meter.Float64Histogram("lmsdownloader_run_duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of download runs."))
	if err != nil {
		return nil, xerrors.Errorf("failed to create histogram: %w", err)
	}

	return &Metrics{
		pagesCaptured: pagesCaptured,
		runs:          runs,
		runDuration:   runDuration,
	}, nil
}

func (m *Metrics) PageCaptured(ctx context.Context, contentType string) {
	if m == nil {
		return
	}
	m.pagesCaptured.Add(ctx, 1, metric.WithAttributes(attribute.String("content_type", contentType)))
}

func (m *Metrics) RunFinished(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), attrs)
}
