package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweeperMetrics records the expired-reservation reclaim job.
type SweeperMetrics struct {
	duration  prometheus.Histogram
	reclaimed prometheus.Counter
	failures  prometheus.Counter
}

// NewSweeperMetrics registers the sweeper metrics on the provided registerer.
func NewSweeperMetrics(reg prometheus.Registerer) *SweeperMetrics {
	if reg == nil {
		return &SweeperMetrics{}
	}
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweeper_duration_seconds",
		Help:    "Duration of reservation sweeps in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reclaimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_tickets_reclaimed_total",
		Help: "Expired ticket holds returned to the market.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_failures_total",
		Help: "Failed sweep runs.",
	})
	reg.MustRegister(duration, reclaimed, failures)
	return &SweeperMetrics{duration: duration, reclaimed: reclaimed, failures: failures}
}

// ObserveDuration records the duration of one sweep.
func (s *SweeperMetrics) ObserveDuration(duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.Observe(duration.Seconds())
}

// AddReclaimed counts tickets returned to the market by a sweep.
func (s *SweeperMetrics) AddReclaimed(n int64) {
	if s == nil || s.reclaimed == nil || n <= 0 {
		return
	}
	s.reclaimed.Add(float64(n))
}

// IncFailure counts a failed sweep run.
func (s *SweeperMetrics) IncFailure() {
	if s == nil || s.failures == nil {
		return
	}
	s.failures.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
