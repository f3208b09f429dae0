// SPDX-License-Identifier: MPL-2.0

package download

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels of the completed counter.
const (
	outcomeValidated = "validated"
	outcomeInvalid   = "invalid"
	outcomeFailed    = "failed"
)

type metrics struct {
	inFlight  prometheus.Gauge
	completed *prometheus.CounterVec
	bytes     prometheus.Counter
	duration  prometheus.Histogram
}

// newMetrics builds the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "addonctl",
			Subsystem: "downloads",
			Name:      "in_flight",
			Help:      "Number of transfers currently running",
		}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "addonctl",
			Subsystem: "downloads",
			Name:      "completed_total",
			Help:      "Finished downloads by outcome",
		}, []string{"outcome"}),
		bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "addonctl",
			Subsystem: "downloads",
			Name:      "bytes_total",
			Help:      "Bytes written to download targets",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "addonctl",
			Subsystem: "downloads",
			Name:      "duration_seconds",
			Help:      "Download duration in seconds, verification included",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}
