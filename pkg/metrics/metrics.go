package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	ChangesCaptured *prometheus.CounterVec
	CaptureErrors   *prometheus.CounterVec

	EventsPublished *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	PublishLatency  *prometheus.HistogramVec

	EventsConsumed  *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec
	HandlerLatency  *prometheus.HistogramVec
)

// Register should be called once by each service binary.
func Register() {
	once.Do(func() {
		ChangesCaptured = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_changes_captured_total",
				Help: "Total number of row changes captured from the source",
			},
			[]string{"table", "op"},
		)

		CaptureErrors = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_capture_errors_total",
				Help: "Total number of change capture errors",
			},
			[]string{"source", "error_type"},
		)

		EventsPublished = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_events_published_total",
				Help: "Total number of events published to the bus",
			},
			[]string{"topic"},
		)

		PublishFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_publish_failures_total",
				Help: "Total number of failed publish attempts",
			},
			[]string{"topic", "error_type"},
		)

		PublishLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdc_publish_latency_seconds",
				Help:    "Publish latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)

		EventsConsumed = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_events_consumed_total",
				Help: "Total number of events consumed from the bus",
			},
			[]string{"topic"},
		)

		EventsDropped = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_events_dropped_total",
				Help: "Total number of events dropped or dead-lettered",
			},
			[]string{"topic", "reason"},
		)

		HandlerFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_handler_failures_total",
				Help: "Total number of failed reaction handler executions",
			},
			[]string{"topic", "error_type"},
		)

		HandlerLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdc_handler_latency_seconds",
				Help:    "Reaction handler execution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)
	})
}
