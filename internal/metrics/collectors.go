package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values used by the installer collectors.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	OperationSave   = "save"
	OperationLoad   = "load"
	OperationRemove = "remove"
)

// Collectors holds the metrics recorded for installer runs.
type Collectors struct {
	PhaseTotal    *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	StateFiles    *prometheus.CounterVec
	SecretAccess  prometheus.Counter
}

// NewCollectors creates the installer collectors and registers them with reg.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		PhaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txinstall",
			Name:      "phase_total",
			Help:      "Number of installer lifecycle calls by phase and outcome.",
		}, []string{"phase", "status"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "txinstall",
			Name:      "phase_duration_seconds",
			Help:      "Duration of installer lifecycle calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"phase"}),
		StateFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txinstall",
			Name:      "state_files_total",
			Help:      "Component state file operations.",
		}, []string{"operation"}),
		SecretAccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txinstall",
			Name:      "secret_access_total",
			Help:      "Secrets resolved while rendering unit params.",
		}),
	}
	for _, collector := range []prometheus.Collector{c.PhaseTotal, c.PhaseDuration, c.StateFiles, c.SecretAccess} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObservePhase records one finished lifecycle call.
func (c *Collectors) ObservePhase(phase, status string, seconds float64) {
	c.PhaseTotal.WithLabelValues(phase, status).Inc()
	c.PhaseDuration.WithLabelValues(phase).Observe(seconds)
}
