package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
)

// Run outcomes recorded by Metrics.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics records matching pass outcomes as Prometheus series.
// It implements matchmaking.RunObserver.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	matched  *prometheus.CounterVec
	duration prometheus.Histogram
	queued   *prometheus.GaugeVec
}

// NewMetrics registers the matchmaker series with reg.
//
// Precondition: reg must be non-nil and must not already hold these series.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchmaker_runs_total",
				Help: "Matching passes by outcome",
			},
			[]string{"outcome"},
		),
		failures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchmaker_run_failures_total",
				Help: "Failed matching passes by stage",
			},
			[]string{"stage"},
		),
		matched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchmaker_players_matched_total",
				Help: "Players matched by stage",
			},
			[]string{"stage"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "matchmaker_run_duration_seconds",
				Help:    "Duration of matching passes",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		queued: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "matchmaker_queued_players",
				Help: "Queued players per latency level at the last snapshot",
			},
			[]string{"latency_level"},
		),
	}
}

// ObserveRun implements matchmaking.RunObserver.
func (m *Metrics) ObserveRun(res matchmaking.RunResult) {
	switch {
	case res.Skipped:
		m.runs.WithLabelValues(OutcomeSkipped).Inc()
		return
	case res.Err != nil:
		m.runs.WithLabelValues(OutcomeFailed).Inc()
		m.failures.WithLabelValues(string(res.FailedStage)).Inc()
	default:
		m.runs.WithLabelValues(OutcomeOK).Inc()
	}

	m.duration.Observe(res.Elapsed.Seconds())
	m.matched.WithLabelValues(string(matchmaking.StageFill)).Add(float64(len(res.Filled)))
	m.matched.WithLabelValues(string(matchmaking.StageCreate)).Add(float64(len(res.Created)))

	if res.QueuedByLevel == nil {
		return
	}
	for level := matchmaking.MinLatencyLevel; level <= matchmaking.MaxLatencyLevel; level++ {
		m.queued.WithLabelValues(strconv.Itoa(int(level))).Set(float64(res.QueuedByLevel[level]))
	}
}
