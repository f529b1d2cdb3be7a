package epochs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/neurostream/neurostream/metric"
)

// epochsMetrics holds the per-stream handles into the platform metric
// vectors. A nil *epochsMetrics disables instrumentation entirely.
type epochsMetrics struct {
	eventsDetected    prometheus.Counter
	epochsExtracted   prometheus.Counter
	epochsRejected    prometheus.Counter
	acquisitionErrors prometheus.Counter
	stepDuration      prometheus.Observer
}

func newEpochsMetrics(registry *metric.MetricsRegistry, streamName string) *epochsMetrics {
	if registry == nil {
		return nil
	}
	core := registry.CoreMetrics()
	return &epochsMetrics{
		eventsDetected:    core.EventsDetected.WithLabelValues(streamName),
		epochsExtracted:   core.EpochsExtracted.WithLabelValues(streamName),
		epochsRejected:    core.EpochsRejected.WithLabelValues(streamName),
		acquisitionErrors: core.AcquisitionErrors.WithLabelValues(streamName),
		stepDuration:      core.AcquisitionDuration.WithLabelValues(streamName),
	}
}
