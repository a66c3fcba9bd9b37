package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metric collectors for mailfang.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// SMTP
	SMTPSessionsTotal  *prometheus.CounterVec
	SMTPMessagesTotal  prometheus.Counter
	SMTPDataSizeBytes  prometheus.Histogram
	SMTPAdmissionInUse prometheus.Gauge
	SMTPAdmissionCap   prometheus.Gauge

	// Ingest worker
	IngestQueueDepth prometheus.Gauge
	IngestSaveErrors prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailfang",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mailfang",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mailfang",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed.",
		}),

		SMTPSessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailfang",
			Subsystem: "smtp",
			Name:      "sessions_total",
			Help:      "Total SMTP sessions accepted.",
		}, []string{"result"}),
		SMTPMessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mailfang",
			Subsystem: "smtp",
			Name:      "messages_total",
			Help:      "Total messages accepted via DATA.",
		}),
		SMTPDataSizeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mailfang",
			Subsystem: "smtp",
			Name:      "data_size_bytes",
			Help:      "Size in bytes of accepted message bodies.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}),
		SMTPAdmissionInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mailfang",
			Subsystem: "smtp",
			Name:      "admission_slots_in_use",
			Help:      "Currently held admission slots.",
		}),
		SMTPAdmissionCap: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mailfang",
			Subsystem: "smtp",
			Name:      "admission_slots_capacity",
			Help:      "Configured admission pool capacity.",
		}),

		IngestQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mailfang",
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Pending jobs waiting for a worker.",
		}),
		IngestSaveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mailfang",
			Subsystem: "ingest",
			Name:      "save_errors_total",
			Help:      "Total persistence gateway save failures.",
		}),
	}
}
