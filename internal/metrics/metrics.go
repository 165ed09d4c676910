// Package metrics exposes Prometheus instruments for service operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder counts and times service operations. It satisfies application.OperationRecorder.
type Recorder struct {
	// OperationsTotal counts operations.
	// Labels: operation, result (ok or an error kind)
	OperationsTotal *prometheus.CounterVec

	// OperationDuration observes how long operations take.
	OperationDuration *prometheus.HistogramVec
}

// NewRecorder registers the instruments with reg. A nil reg uses the default registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "studymates",
				Subsystem: "membership",
				Name:      "operations_total",
				Help:      "Total number of service operations by outcome",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "studymates",
				Subsystem: "membership",
				Name:      "operation_duration_seconds",
				Help:      "Duration of service operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// ObserveOperation records one operation. An empty kind counts as ok.
func (r *Recorder) ObserveOperation(operation, kind string, elapsed time.Duration) {
	if r == nil {
		return
	}
	result := kind
	if result == "" {
		result = "ok"
	}
	r.OperationsTotal.WithLabelValues(operation, result).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
