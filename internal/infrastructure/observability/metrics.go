package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCount      metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	StageDuration     metric.Float64Histogram
	StageOutcome      metric.Int64Counter
	NotesSubmitted    metric.Int64Counter
	QuestionsAnswered metric.Int64Counter
	queueDepth        metric.Int64ObservableGauge
}

// InitMetrics initializes application metrics on the global meter provider
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.RequestCount, err = meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.StageDuration, err = meter.Float64Histogram(
		"pipeline.stage.duration",
		metric.WithDescription("Duration of one pipeline stage in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.StageOutcome, err = meter.Int64Counter(
		"pipeline.stage.outcome",
		metric.WithDescription("Pipeline stage results by outcome"),
	); err != nil {
		return nil, err
	}
	if m.NotesSubmitted, err = meter.Int64Counter(
		"pipeline.notes.submitted",
		metric.WithDescription("Voice notes accepted for processing"),
	); err != nil {
		return nil, err
	}
	if m.QuestionsAnswered, err = meter.Int64Counter(
		"qa.questions",
		metric.WithDescription("Questions answered, by whether context was found"),
	); err != nil {
		return nil, err
	}
	if m.queueDepth, err = meter.Int64ObservableGauge(
		"pipeline.queue.depth",
		metric.WithDescription("Notes waiting for a pipeline worker"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveQueueDepth registers a callback reporting the current queue length.
func (m *Metrics) ObserveQueueDepth(depth func() int) error {
	if m == nil {
		return nil
	}
	_, err := otel.Meter(instrumentationName).RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.queueDepth, int64(depth()))
		return nil
	}, m.queueDepth)
	return err
}

// RecordRequestMetric records an HTTP request
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	)
	metrics.RequestCount.Add(ctx, 1, attrs)
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordStage records one stage execution; outcome is ok, failed, skipped or conflict
func RecordStage(ctx context.Context, metrics *Metrics, stage, outcome string, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("pipeline.stage", stage),
		attribute.String("pipeline.outcome", outcome),
	)
	metrics.StageOutcome.Add(ctx, 1, attrs)
	metrics.StageDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordNoteSubmitted counts an accepted upload
func RecordNoteSubmitted(ctx context.Context, metrics *Metrics) {
	if metrics == nil {
		return
	}
	metrics.NotesSubmitted.Add(ctx, 1)
}

// RecordQuestion counts an answered question
func RecordQuestion(ctx context.Context, metrics *Metrics, found bool) {
	if metrics == nil {
		return
	}
	metrics.QuestionsAnswered.Add(ctx, 1, metric.WithAttributes(attribute.Bool("qa.found", found)))
}
