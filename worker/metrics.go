package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pool's Prometheus instruments. A nil *Metrics is
// valid and records nothing, so metrics stay opt-in.
type Metrics struct {
	ItemsClaimed    prometheus.Counter
	ItemsCompleted  prometheus.Counter
	ItemsFailed     prometheus.Counter
	LeasesReclaimed prometheus.Counter
	HandlerDuration prometheus.Histogram
}

// NewMetrics registers the pool instruments with the given registerer
// (use prometheus.DefaultRegisterer for the default registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ItemsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "squeue_items_claimed_total",
			Help: "Total number of items claimed by this pool.",
		}),
		ItemsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "squeue_items_completed_total",
			Help: "Total number of items acknowledged complete.",
		}),
		ItemsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "squeue_items_failed_total",
			Help: "Total number of handler failures recorded.",
		}),
		LeasesReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "squeue_leases_reclaimed_total",
			Help: "Total number of expired leases returned to pending.",
		}),
		HandlerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "squeue_handler_duration_seconds",
			Help:    "Handler execution time in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) claimed() {
	if m != nil {
		m.ItemsClaimed.Inc()
	}
}

func (m *Metrics) completed() {
	if m != nil {
		m.ItemsCompleted.Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.ItemsFailed.Inc()
	}
}

func (m *Metrics) reclaimed(n int64) {
	if m != nil && n > 0 {
		m.LeasesReclaimed.Add(float64(n))
	}
}

func (m *Metrics) observeHandler(d time.Duration) {
	if m != nil {
		m.HandlerDuration.Observe(d.Seconds())
	}
}
