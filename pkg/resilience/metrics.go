package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retry_attempts_total",
			Help: "Retry attempts by operation and result",
		},
		[]string{"operation", "result"},
	)

	retryOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilience_retry_operation_duration_seconds",
			Help:    "Total duration of retried operations including backoff",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)
)

// RecordRetryAttempt records a single attempt outcome.
func RecordRetryAttempt(operation string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	retryAttemptsTotal.WithLabelValues(operation, result).Inc()
}

// RecordRetryOperation records the overall outcome of a retried operation.
func RecordRetryOperation(operation string, durationSeconds float64, attempts int, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	retryOperationDuration.WithLabelValues(operation, result).Observe(durationSeconds)
}

// RecordBreakerState records a breaker state transition.
func RecordBreakerState(name, state string) {
	var value float64
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	breakerState.WithLabelValues(name).Set(value)
}
