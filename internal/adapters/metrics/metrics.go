package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Metrics implements ports.Recorder with Prometheus collectors.
type Metrics struct {
	Builds        *prometheus.CounterVec
	BuildDuration *prometheus.HistogramVec
	Pushes        *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Builds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lighthouse",
			Name:      "builds_total",
			Help:      "Finished builds by outcome and the stage they ended in.",
		}, []string{"outcome", "stage"}),
		BuildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lighthouse",
			Name:      "build_duration_seconds",
			Help:      "Wall time of whole builds, fetch to publish.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"outcome"}),
		Pushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lighthouse",
			Name:      "pushes_total",
			Help:      "Registry pushes by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveBuild(result domain.BuildResult, elapsed time.Duration) {
	outcome, stage := "success", string(domain.StageDone)
	if f, ok := result.(*domain.Failure); ok {
		outcome, stage = "failure", string(f.Stage)
	}
	m.Builds.WithLabelValues(outcome, stage).Inc()
	m.BuildDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePush(outcome domain.PushOutcome) {
	label := "success"
	if outcome.Failed {
		label = "failure"
	}
	m.Pushes.WithLabelValues(label).Inc()
}
