package reward

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes reward issuance counters.
type Metrics struct {
	submissions   *prometheus.CounterVec
	grants        *prometheus.CounterVec
	points        *prometheus.CounterVec
	conflicts     prometheus.Counter
	replays       prometheus.Counter
	issueDuration prometheus.Histogram
}

// NewMetrics registers collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_submissions_total",
			Help: "Graded submissions recorded, by quest kind and outcome.",
		}, []string{"kind", "outcome"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_rewards_granted_total",
			Help: "Reward grants written, by policy.",
		}, []string{"policy"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_reward_points_total",
			Help: "Reward points credited, by policy.",
		}, []string{"policy"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quest_reward_conflicts_total",
			Help: "Grant commits that lost a race for the same key.",
		}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quest_idempotent_replays_total",
			Help: "Submissions answered from an already stored attempt.",
		}),
		issueDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quest_submit_duration_seconds",
			Help:    "Time spent deciding and committing a reward.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submissions, m.grants, m.points, m.conflicts, m.replays, m.issueDuration)
	}
	return m
}

func (m *Metrics) observeAttempt(kind string, passed bool) {
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) observeGrant(policy string, points int) {
	m.grants.WithLabelValues(policy).Inc()
	m.points.WithLabelValues(policy).Add(float64(points))
}
