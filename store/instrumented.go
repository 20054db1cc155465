package store

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
)

// Compile-time interface check.
var _ Table = (*InstrumentedTable)(nil)

// TableMetrics holds the Prometheus collectors updated by InstrumentedTable.
type TableMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewTableMetrics creates the table collectors and registers them with reg
// when it is non-nil.
func NewTableMetrics(reg prometheus.Registerer) *TableMetrics {
	m := &TableMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvcounter",
			Subsystem: "store",
			Name:      "calls_total",
			Help:      "Table calls by call and result",
		}, []string{"call", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kvcounter",
			Subsystem: "store",
			Name:      "call_duration_seconds",
			Help:      "Table call latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"call"}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.latency)
	}
	return m
}

// InstrumentedTable wraps another Table, recording metrics and debug logs
// for every call. It adds no state of its own: every call goes straight
// through to the wrapped table.
type InstrumentedTable struct {
	next    Table
	metrics *TableMetrics
	logger  hclog.Logger
}

// NewInstrumentedTable wraps next. A nil metrics or logger disables that
// half of the instrumentation.
func NewInstrumentedTable(next Table, metrics *TableMetrics, logger hclog.Logger) *InstrumentedTable {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &InstrumentedTable{next: next, metrics: metrics, logger: logger}
}

// Get forwards to the wrapped table.
func (t *InstrumentedTable) Get(ctx context.Context, key string) (Entry, bool, error) {
	start := time.Now()
	e, ok, err := t.next.Get(ctx, key)

	result := "hit"
	switch {
	case err != nil:
		result = KindOf(err).String()
	case !ok:
		result = "miss"
	}
	t.record("get", result, start)
	t.logger.Trace("get", "key", key, "result", result, "version", e.Version)

	return e, ok, err
}

// Insert forwards to the wrapped table.
func (t *InstrumentedTable) Insert(ctx context.Context, key string, value int64, expected Version) (Version, error) {
	start := time.Now()
	v, err := t.next.Insert(ctx, key, value, expected)

	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	t.record("insert", result, start)
	t.logger.Trace("insert", "key", key, "expected", expected, "result", result, "version", v)

	return v, err
}

// Close closes the wrapped table.
func (t *InstrumentedTable) Close() error {
	return t.next.Close()
}

func (t *InstrumentedTable) record(call, result string, start time.Time) {
	if t.metrics == nil {
		return
	}
	t.metrics.calls.WithLabelValues(call, result).Inc()
	t.metrics.latency.WithLabelValues(call).Observe(time.Since(start).Seconds())
}
