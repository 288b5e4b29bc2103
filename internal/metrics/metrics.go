// Package metrics provides Prometheus metrics for the FREYA flight
// control core.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all FREYA Prometheus metrics.
type Metrics struct {
	// Loop metrics
	InnerLoopDuration prometheus.Histogram
	OuterLoopDuration prometheus.Histogram
	LoopTicks         prometheus.Counter

	// Degraded-mode policy events, labeled by the policy taken.
	DegradedEvents *prometheus.CounterVec

	// Controller state
	StaleResets     *prometheus.CounterVec
	MotorSaturation prometheus.Counter
	LandDetected    prometheus.Gauge
	EmergencyActive prometheus.Gauge
	ActiveNavModes  *prometheus.GaugeVec
	ThrottleCommand prometheus.Gauge
	AxisCorrection  *prometheus.GaugeVec
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Default returns the process-wide metrics bundle, registering it on
// first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		InnerLoopDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "freya_inner_loop_duration_seconds",
			Help:    "Wall time of one inner PID iteration.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 2, 12),
		}),
		OuterLoopDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "freya_outer_loop_duration_seconds",
			Help:    "Wall time of one navigation controller iteration.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 2, 12),
		}),
		LoopTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "freya_loop_ticks_total",
			Help: "Scheduler ticks executed.",
		}),
		DegradedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "freya_degraded_events_total",
			Help: "Degraded-mode policies taken, by policy.",
		}, []string{"policy"}),
		StaleResets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "freya_stale_resets_total",
			Help: "Sub-controller resets caused by stale sensor data.",
		}, []string{"controller"}),
		MotorSaturation: factory.NewCounter(prometheus.CounterOpts{
			Name: "freya_motor_saturation_ticks_total",
			Help: "Ticks spent with the mixer reporting saturation.",
		}),
		LandDetected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "freya_land_detected",
			Help: "1 while the land detector latches touchdown.",
		}),
		EmergencyActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "freya_emergency_descent_active",
			Help: "1 while the emergency descent controller runs.",
		}),
		ActiveNavModes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "freya_nav_mode_active",
			Help: "Active navigation controller flags.",
		}, []string{"mode"}),
		ThrottleCommand: factory.NewGauge(prometheus.GaugeOpts{
			Name: "freya_throttle_command",
			Help: "Last throttle command sent to the mixer.",
		}),
		AxisCorrection: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "freya_axis_correction",
			Help: "Last per-axis PID correction sent to the mixer.",
		}, []string{"axis"}),
	}
}

// NewForRegistry builds an isolated bundle on the given registry
// instead of the process-wide default.
func NewForRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}
