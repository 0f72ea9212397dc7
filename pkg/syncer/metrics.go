package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the sync collectors.
type Metrics struct {
	Runs             *prometheus.CounterVec
	ServersProcessed *prometheus.CounterVec
	DetailFailures   *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by source and final state.",
		}, []string{"source", "state"}),
		ServersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "sync",
			Name:      "servers_processed_total",
			Help:      "Servers upserted by successful sync runs.",
		}, []string{"source"}),
		DetailFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "sync",
			Name:      "detail_failures_total",
			Help:      "Listings skipped because their detail fetch failed.",
		}, []string{"source"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "registry",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of sync runs.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"source"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.ServersProcessed, m.DetailFailures, m.RunDuration)
	}
	return m
}

func (m *Metrics) observe(source string, res *Result, err error) {
	if m == nil {
		return
	}
	state := string(StateSucceeded)
	if err != nil {
		state = string(StateFailed)
	}
	m.Runs.WithLabelValues(source, state).Inc()
	if res == nil {
		return
	}
	m.DetailFailures.WithLabelValues(source).Add(float64(res.DetailFailures))
	m.RunDuration.WithLabelValues(source).Observe(res.Duration.Seconds())
	if err == nil {
		m.ServersProcessed.WithLabelValues(source).Add(float64(res.Processed))
	}
}
