// Package metrics provides Prometheus metrics for the result gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	MessagesIngested    *prometheus.CounterVec
	MessagesProcessed   prometheus.Counter
	MessagesUnmatched   prometheus.Counter
	MessagesFailed      prometheus.Counter
	ParametersWritten   prometheus.Counter
	ProcessingDuration  prometheus.Histogram
	KafkaEventsProduced prometheus.Counter
	KafkaEventsConsumed prometheus.Counter
	OutboxPending       prometheus.Gauge
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		MessagesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lis_messages_ingested_total",
			Help: "Total analyzer messages received, by protocol",
		}, []string{"protocol"}),
		MessagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lis_messages_processed_total",
			Help: "Total messages matched and written to a specimen",
		}),
		MessagesUnmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lis_messages_unmatched_total",
			Help: "Total messages that matched no pending specimen or parameter",
		}),
		MessagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lis_messages_failed_total",
			Help: "Total messages whose persistence failed",
		}),
		ParametersWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lis_parameters_written_total",
			Help: "Total test parameter values written from machine results",
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lis_message_processing_duration_seconds",
			Help:    "Result message processing duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		KafkaEventsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lis_kafka_events_produced_total",
			Help: "Total result events produced to Kafka",
		}),
		KafkaEventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lis_kafka_events_consumed_total",
			Help: "Total result events consumed from Kafka",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lis_outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lis_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.MessagesIngested,
		m.MessagesProcessed,
		m.MessagesUnmatched,
		m.MessagesFailed,
		m.ParametersWritten,
		m.ProcessingDuration,
		m.KafkaEventsProduced,
		m.KafkaEventsConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
