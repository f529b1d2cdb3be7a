package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not component-specific)
type Metrics struct {
	// Component metrics
	ComponentStatus *prometheus.GaugeVec

	// Signal pipeline metrics
	SamplesReceived     *prometheus.CounterVec
	ChunksPublished     *prometheus.CounterVec
	EventsDetected      *prometheus.CounterVec
	EpochsExtracted     *prometheus.CounterVec
	EpochsRejected      *prometheus.CounterVec
	AcquisitionErrors   *prometheus.CounterVec
	AcquisitionDuration *prometheus.HistogramVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "neurostream",
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),

		SamplesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "neurostream",
				Subsystem: "samples",
				Name:      "received_total",
				Help:      "Total number of samples received per stream",
			},
			[]string{"stream"},
		),

		ChunksPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "neurostream",
				Subsystem: "chunks",
				Name:      "published_total",
				Help:      "Total number of sample chunks published per subject",
			},
			[]string{"subject"},
		),

		EventsDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "neurostream",
				Subsystem: "events",
				Name:      "detected_total",
				Help:      "Total number of trigger events detected per stream",
			},
			[]string{"stream"},
		),

		EpochsExtracted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "neurostream",
				Subsystem: "epochs",
				Name:      "extracted_total",
				Help:      "Total number of epochs extracted into the rolling buffer",
			},
			[]string{"stream"},
		),

		EpochsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "neurostream",
				Subsystem: "epochs",
				Name:      "rejected_total",
				Help:      "Total number of epochs dropped by rejection criteria",
			},
			[]string{"stream"},
		),

		AcquisitionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "neurostream",
				Subsystem: "acquisition",
				Name:      "errors_total",
				Help:      "Total number of recovered acquisition step errors",
			},
			[]string{"stream"},
		),

		AcquisitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "neurostream",
				Subsystem: "acquisition",
				Name:      "step_duration_seconds",
				Help:      "Acquisition step duration in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"stream"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "neurostream",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "neurostream",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}
