// Package metrics exports stream progress as Prometheus gauges and serves
// them with a health endpoint.
package metrics

import (
	"sync"

	"github.com/dyluth/spigot/internal/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var allStatuses = []stream.Status{
	stream.StatusBootstrapping,
	stream.StatusRunning,
	stream.StatusPaused,
	stream.StatusDraining,
	stream.StatusStopped,
	stream.StatusFailed,
}

// Recorder implements stream.ProgressSink. Report runs on the digit loop
// while HTTP scrapes read the last snapshot concurrently.
type Recorder struct {
	registry *prometheus.Registry

	digits       prometheus.Gauge
	rate         prometheus.Gauge
	smoothedRate prometheus.Gauge
	status       *prometheus.GaugeVec
	pauses       prometheus.Counter

	mu   sync.Mutex
	last stream.Progress
}

// NewRecorder registers the spigot collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		digits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "spigot",
			Name:      "digits_written",
			Help:      "Fractional digits of pi appended to the artifact.",
		}),
		rate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "spigot",
			Name:      "digits_per_second",
			Help:      "Instantaneous digit rate over the last progress interval.",
		}),
		smoothedRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "spigot",
			Name:      "digits_per_second_smoothed",
			Help:      "Exponentially smoothed digit rate.",
		}),
		status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "spigot",
			Name:      "status",
			Help:      "1 for the current controller status, 0 otherwise.",
		}, []string{"status"}),
		pauses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spigot",
			Name:      "pauses_total",
			Help:      "Transitions into the paused state.",
		}),
	}
}

// Registry returns the registry holding the spigot collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Report records p.
func (r *Recorder) Report(p stream.Progress) {
	r.mu.Lock()
	prev := r.last.Status
	r.last = p
	r.mu.Unlock()

	r.digits.Set(float64(p.DigitsWritten))
	r.rate.Set(p.Rate)
	r.smoothedRate.Set(p.SmoothedRate)
	for _, s := range allStatuses {
		v := 0.0
		if s == p.Status {
			v = 1
		}
		r.status.WithLabelValues(string(s)).Set(v)
	}
	if p.Status == stream.StatusPaused && prev != stream.StatusPaused {
		r.pauses.Inc()
	}
}

// Last returns the most recent report.
func (r *Recorder) Last() stream.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
