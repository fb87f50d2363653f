package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics covering the four golden signals:
// - Latency: request and job durations
// - Traffic: request/job throughput
// - Errors: failure rates per class
// - Saturation: active jobs against the admission cap, cleanup queue depth
type Metrics struct {
	meter metric.Meter

	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job metrics
	JobDuration    metric.Float64Histogram
	JobsTotal      metric.Int64Counter
	JobErrorsTotal metric.Int64Counter
	JobsActive     metric.Int64UpDownCounter

	// Object store metrics
	StoreOpDuration metric.Float64Histogram
	StoreErrors     metric.Int64Counter

	// Cleanup worker metrics
	CleanupDeleted   metric.Int64Counter
	CleanupFailed    metric.Int64Counter
	CleanupQueueSize metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("tryon")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job metrics. Buckets sized for GPU inference with cold starts.
	m.JobDuration, err = meter.Float64Histogram(
		"tryon_job_duration_seconds",
		metric.WithDescription("Try-on job duration from admission to completion in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 20, 40, 60, 90, 120, 180, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"tryon_jobs_total",
		metric.WithDescription("Total number of try-on jobs submitted"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobErrorsTotal, err = meter.Int64Counter(
		"tryon_job_errors_total",
		metric.WithDescription("Total number of failed try-on jobs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"tryon_jobs_active",
		metric.WithDescription("Jobs currently holding an admission slot (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Object store metrics
	m.StoreOpDuration, err = meter.Float64Histogram(
		"store_op_duration_seconds",
		metric.WithDescription("Object store operation latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StoreErrors, err = meter.Int64Counter(
		"store_errors_total",
		metric.WithDescription("Total number of failed object store operations"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Cleanup worker metrics
	m.CleanupDeleted, err = meter.Int64Counter(
		"cleanup_deleted_total",
		metric.WithDescription("Staged input objects deleted after job completion"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CleanupFailed, err = meter.Int64Counter(
		"cleanup_failed_total",
		metric.WithDescription("Staged input deletions that failed (best effort, not retried)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CleanupQueueSize, err = meter.Int64Gauge(
		"cleanup_queue_size",
		metric.WithDescription("Current number of keys waiting for deletion (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobAdmitted records a job acquiring an admission slot.
func (m *Metrics) RecordJobAdmitted(ctx context.Context, clothType string) {
	attrs := metric.WithAttributes(clothTypeAttr(clothType))
	m.JobsTotal.Add(ctx, 1, attrs)
	m.JobsActive.Add(ctx, 1, attrs)
}

// RecordJobCompleted records a job releasing its slot, success or failure.
func (m *Metrics) RecordJobCompleted(ctx context.Context, clothType string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(clothTypeAttr(clothType), successAttr(success))
	m.JobDuration.Record(ctx, durationSeconds, attrs)
	m.JobsActive.Add(ctx, -1, metric.WithAttributes(clothTypeAttr(clothType)))

	if !success {
		m.JobErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordStoreOp records one object store operation.
func (m *Metrics) RecordStoreOp(ctx context.Context, op string, err error, durationSeconds float64) {
	attrs := metric.WithAttributes(opAttr(op))
	m.StoreOpDuration.Record(ctx, durationSeconds, attrs)
	if err != nil {
		m.StoreErrors.Add(ctx, 1, attrs)
	}
}

// RecordCleanupDeleted records a successfully deleted staged key.
func (m *Metrics) RecordCleanupDeleted(ctx context.Context) {
	m.CleanupDeleted.Add(ctx, 1)
}

// RecordCleanupFailed records a staged key whose deletion failed.
func (m *Metrics) RecordCleanupFailed(ctx context.Context) {
	m.CleanupFailed.Add(ctx, 1)
}

// RecordCleanupQueueSize records the current deletion queue depth.
func (m *Metrics) RecordCleanupQueueSize(ctx context.Context, size int64) {
	m.CleanupQueueSize.Record(ctx, size)
}
