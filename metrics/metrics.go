// Package metrics exports engine handle and run statistics to Prometheus.
package metrics

import (
	"time"

	"github.com/gomithril/menoh/native"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "menoh"

// Collector implements native.Observer. Pass it to native.Instrument.
type Collector struct {
	acquired *prometheus.CounterVec
	released *prometheus.CounterVec
	live     *prometheus.GaugeVec
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

var _ native.Observer = (*Collector)(nil)

// NewCollector creates the engine metrics and registers them with reg. A
// nil reg leaves them unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		acquired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "handles_acquired_total",
				Help:      "The total number of native handles acquired.",
			},
			[]string{"kind"},
		),
		released: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "handles_released_total",
				Help:      "The total number of native handles released.",
			},
			[]string{"kind"},
		),
		live: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "handles_live",
				Help:      "The number of native handles currently held.",
			},
			[]string{"kind"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "model",
				Name:      "runs_total",
				Help:      "The total number of model runs.",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "model",
				Name:      "run_duration_seconds",
				Help:      "Model run latency.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
		),
	}
	for _, k := range native.Kinds {
		c.acquired.WithLabelValues(string(k))
		c.released.WithLabelValues(string(k))
		c.live.WithLabelValues(string(k))
	}
	if reg != nil {
		reg.MustRegister(c.acquired, c.released, c.live, c.runs, c.duration)
	}
	return c
}

func (c *Collector) Acquired(kind native.Kind) {
	c.acquired.WithLabelValues(string(kind)).Inc()
	c.live.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) Released(kind native.Kind) {
	c.released.WithLabelValues(string(kind)).Inc()
	c.live.WithLabelValues(string(kind)).Dec()
}

// Ran records one run. Failed runs are labelled with their error category.
func (c *Collector) Ran(elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = native.CategoryOf(err).String()
	}
	c.runs.WithLabelValues(result).Inc()
	c.duration.Observe(elapsed.Seconds())
}
