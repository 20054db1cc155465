package kvcounter

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ryhazerus/kvcounter/store"
)

// Metrics holds the Prometheus collectors updated by Counters.
type Metrics struct {
	operations *prometheus.CounterVec   // completed operations by op and result
	attempts   *prometheus.HistogramVec // attempts per completed operation
	retries    *prometheus.CounterVec   // retried attempts by op and cause kind
}

// NewMetrics creates the collectors and registers them with reg when it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvcounter",
			Name:      "operations_total",
			Help:      "Counter operations by operation and result",
		}, []string{"op", "result"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kvcounter",
			Name:      "attempts",
			Help:      "Read/commit attempts needed per operation",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}, []string{"op"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvcounter",
			Name:      "retries_total",
			Help:      "Failed attempts followed by another attempt, by operation and cause kind",
		}, []string{"op", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.attempts, m.retries)
	}
	return m
}

func (m *Metrics) observe(op string, attempts int, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
	if attempts > 0 {
		m.attempts.WithLabelValues(op).Observe(float64(attempts))
	}
}

func (m *Metrics) retried(op string, cause error) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op, store.KindOf(cause).String()).Inc()
}

func resultLabel(err error) string {
	var se *store.Error
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrKeyDoesNotExist):
		return "key_does_not_exist"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrRuntimeClosed):
		return "closed"
	case errors.As(err, &se):
		return se.Kind.String()
	default:
		return "error"
	}
}
