package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ComponentMetrics is the operation/duration/error triple every component
// exposes under its own subsystem.
type ComponentMetrics struct {
	operationsTotal *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

func newComponentMetrics(subsystem string, buckets []float64) *ComponentMetrics {
	m := &ComponentMetrics{}
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Total number of operations by outcome",
		},
		[]string{"operation", "status"},
	)
	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Time taken by operations",
			Buckets:   buckets,
		},
		[]string{"operation"},
	)
	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors by category",
		},
		[]string{"operation", "error_type"},
	)
	m.collectors = []prometheus.Collector{m.operationsTotal, m.duration, m.errorsTotal}
	return m
}

// RecordOperation implements Recorder.
func (m *ComponentMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *ComponentMetrics) RecordDuration(operation string, seconds float64) {
	m.duration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *ComponentMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// Describe implements the Collector interface
func (m *ComponentMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *ComponentMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

func register(registry *prometheus.Registry, c prometheus.Collector) error {
	if registry == nil {
		return nil
	}
	return registry.Register(c)
}

// SyncMetrics covers the store/projection bridge.
type SyncMetrics struct {
	*ComponentMetrics
	projectionSize *prometheus.GaugeVec
}

// NewSyncMetrics creates and registers sync controller metrics.
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{
		ComponentMetrics: newComponentMetrics("sync",
			prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12)),
	}
	m.projectionSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "projection_records",
			Help:      "Number of projection records",
		},
		[]string{"set"}, // set: total, visible
	)
	m.collectors = append(m.collectors, m.projectionSize)
	if err := register(registry, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetProjectionSize records the size of the backing list and the visible subset.
func (m *SyncMetrics) SetProjectionSize(total, visible int) {
	m.projectionSize.WithLabelValues("total").Set(float64(total))
	m.projectionSize.WithLabelValues("visible").Set(float64(visible))
}

// AuditMetrics covers the action audit log.
type AuditMetrics struct {
	*ComponentMetrics
	bufferedEntries prometheus.Gauge
	flushedEntries  prometheus.Counter
}

// NewAuditMetrics creates and registers audit log metrics.
func NewAuditMetrics(registry *prometheus.Registry) (*AuditMetrics, error) {
	m := &AuditMetrics{
		ComponentMetrics: newComponentMetrics("audit",
			prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15)),
	}
	m.bufferedEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "audit",
		Name:      "buffered_entries",
		Help:      "Completed audit entries waiting for a flush",
	})
	m.flushedEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "audit",
		Name:      "flushed_entries_total",
		Help:      "Audit entries written to every sink",
	})
	m.collectors = append(m.collectors, m.bufferedEntries, m.flushedEntries)
	if err := register(registry, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetBuffered records the current buffer length.
func (m *AuditMetrics) SetBuffered(n int) {
	m.bufferedEntries.Set(float64(n))
}

// AddFlushed counts entries that reached every sink.
func (m *AuditMetrics) AddFlushed(n int) {
	m.flushedEntries.Add(float64(n))
}

// NewCodecMetrics creates and registers persistence codec metrics.
func NewCodecMetrics(registry *prometheus.Registry) (*ComponentMetrics, error) {
	m := newComponentMetrics("codec",
		prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15))
	if err := register(registry, m); err != nil {
		return nil, err
	}
	return m, nil
}

// NewInferenceMetrics creates and registers inference client metrics.
func NewInferenceMetrics(registry *prometheus.Registry) (*ComponentMetrics, error) {
	m := newComponentMetrics("inference",
		prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount12))
	if err := register(registry, m); err != nil {
		return nil, err
	}
	return m, nil
}
