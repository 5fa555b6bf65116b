package notify

import (
	"time"

	"prtrack/internal/types"
)

// DeliveryMetrics receives delivery telemetry. Implementations must be safe
// for concurrent use; the dispatcher emits from multiple goroutines.
type DeliveryMetrics interface {
	// Count records one occurrence of a named metric with dimension pairs.
	Count(metric string, dims map[string]string)
	// Duration records how long a dispatch took end to end.
	Duration(metric string, d time.Duration, dims map[string]string)
}

// LogMetrics emits metrics as structured log lines. It is the default
// implementation; a metrics backend can replace it behind the same interface.
type LogMetrics struct {
	logger types.Logger
}

// NewLogMetrics creates a LogMetrics over the given logger.
func NewLogMetrics(logger types.Logger) *LogMetrics {
	return &LogMetrics{logger: logger}
}

// Count implements DeliveryMetrics.
func (m *LogMetrics) Count(metric string, dims map[string]string) {
	m.logger.Info("metric",
		"namespace", types.MetricNamespace,
		"name", metric,
		"dims", dims,
	)
}

// Duration implements DeliveryMetrics.
func (m *LogMetrics) Duration(metric string, d time.Duration, dims map[string]string) {
	m.logger.Info("metric",
		"namespace", types.MetricNamespace,
		"name", metric,
		"duration_ms", d.Milliseconds(),
		"dims", dims,
	)
}

// NopMetrics discards all telemetry. Intended for tests.
type NopMetrics struct{}

func (NopMetrics) Count(string, map[string]string)                  {}
func (NopMetrics) Duration(string, time.Duration, map[string]string) {}

var _ DeliveryMetrics = (*LogMetrics)(nil)
var _ DeliveryMetrics = NopMetrics{}
