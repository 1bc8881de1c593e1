package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
)

// MetricsNamespace prefixes every Prometheus metric name
const MetricsNamespace = "esl_driver"

// Result label values
const (
	ResultUpdated = "updated"
	ResultDeleted = "deleted"
	ResultSkipped = "skipped"
	ResultError   = "error"
	ResultOK      = "ok"
	ResultFailed  = "failed"
)

// SyncMetrics records webhook and delivery measurements.
// Prometheus collectors live on a dedicated registry served by Handler;
// when a meter is supplied the same measurements are also pushed over OTLP.
//
// Safe for concurrent use.
type SyncMetrics struct {
	registry *prometheus.Registry

	webhookRequests *prometheus.CounterVec
	webhookDuration prometheus.Histogram
	syncItems       *prometheus.CounterVec
	sinkRequests    *prometheus.CounterVec
	sinkDuration    *prometheus.HistogramVec
	batches         *prometheus.CounterVec
	batchItems      *prometheus.CounterVec
	queueDepth      prometheus.Gauge

	otlpSinkRequests *Counter
	otlpSinkDuration *Histogram
	otlpSyncItems    *Counter
	otlpQueueDepth   *Gauge
}

// NewSyncMetrics creates the collectors. meter may be nil to skip OTLP instruments.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	m := &SyncMetrics{registry: prometheus.NewRegistry()}

	m.webhookRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "webhook_requests_total",
		Help:      "Webhook requests by response status code.",
	}, []string{"code"})
	m.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "webhook_duration_seconds",
		Help:      "Time from webhook receipt to response.",
		Buckets:   SinkDurationBuckets,
	})
	m.syncItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "sync_items_total",
		Help:      "Item outcomes per webhook request.",
	}, []string{"result"})
	m.sinkRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "sink_requests_total",
		Help:      "HTTP attempts against the label cloud.",
	}, []string{"operation", "status_class"})
	m.sinkDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "sink_request_duration_seconds",
		Help:      "Duration of a single label cloud HTTP attempt.",
		Buckets:   SinkDurationBuckets,
	}, []string{"operation"})
	m.batches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "batches_total",
		Help:      "Batches delivered or abandoned after retries.",
	}, []string{"operation", "result"})
	m.batchItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "batch_items_total",
		Help:      "Items carried by delivered batches.",
	}, []string{"operation"})
	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "dispatch_queue_depth",
		Help:      "Sync jobs waiting for a worker.",
	})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.webhookRequests,
		m.webhookDuration,
		m.syncItems,
		m.sinkRequests,
		m.sinkDuration,
		m.batches,
		m.batchItems,
		m.queueDepth,
	)

	if meter == nil {
		return m, nil
	}

	var err error
	if m.otlpSinkRequests, err = NewCounter(meter, "esl.sink.requests", "HTTP attempts against the label cloud", "{request}"); err != nil {
		return nil, err
	}
	if m.otlpSinkDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "esl.sink.request.duration",
		Description: "Duration of a single label cloud HTTP attempt",
		Unit:        "s",
		Boundaries:  SinkDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.otlpSyncItems, err = NewCounter(meter, "esl.sync.items", "Item outcomes per webhook request", "{item}"); err != nil {
		return nil, err
	}
	if m.otlpQueueDepth, err = NewGauge(meter, "esl.dispatch.queue.depth", "Sync jobs waiting for a worker", "{job}"); err != nil {
		return nil, err
	}
	return m, nil
}

// Registry exposes the Prometheus registry, mainly for tests
func (m *SyncMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveWebhook records one webhook response
func (m *SyncMetrics) ObserveWebhook(statusCode int, elapsed time.Duration) {
	m.webhookRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	m.webhookDuration.Observe(elapsed.Seconds())
}

// ObserveSync records the item outcome counts of one request
func (m *SyncMetrics) ObserveSync(updated, deleted, skipped, errors int) {
	for result, n := range map[string]int{
		ResultUpdated: updated,
		ResultDeleted: deleted,
		ResultSkipped: skipped,
		ResultError:   errors,
	} {
		if n <= 0 {
			continue
		}
		m.syncItems.WithLabelValues(result).Add(float64(n))
		if m.otlpSyncItems != nil {
			m.otlpSyncItems.Add(context.Background(), int64(n), AttrResult.String(result))
		}
	}
}

// ObserveSinkRequest records one HTTP attempt against the label cloud
func (m *SyncMetrics) ObserveSinkRequest(op string, statusClass string, elapsed time.Duration) {
	m.sinkRequests.WithLabelValues(op, statusClass).Inc()
	m.sinkDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if m.otlpSinkRequests != nil {
		ctx := context.Background()
		m.otlpSinkRequests.Inc(ctx, AttrOperation.String(op), AttrStatusClass.String(statusClass))
		m.otlpSinkDuration.RecordDuration(ctx, elapsed, AttrOperation.String(op))
	}
}

// ObserveBatch records a batch once its retries are settled
func (m *SyncMetrics) ObserveBatch(op string, items int, failed bool) {
	result := ResultOK
	if failed {
		result = ResultFailed
	}
	m.batches.WithLabelValues(op, result).Inc()
	if !failed {
		m.batchItems.WithLabelValues(op).Add(float64(items))
	}
}

// SetQueueDepth records the number of queued sync jobs
func (m *SyncMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
	if m.otlpQueueDepth != nil {
		m.otlpQueueDepth.Record(context.Background(), int64(n))
	}
}
