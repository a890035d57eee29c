package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "railbooking"

// Reservation outcomes used as the "outcome" label.
const (
	OutcomeBooked        = "booked"
	OutcomeSoldOut       = "sold_out"
	OutcomeTrainNotFound = "train_not_found"
	OutcomeAbandoned     = "abandoned"
	OutcomeError         = "error"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ReservationsTotal *prometheus.CounterVec
	LockWaitSeconds   prometheus.Histogram
	CommitConflicts   prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		ReservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Seat reservation attempts by outcome.",
		}, []string{"outcome"}),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reservation_lock_wait_seconds",
			Help:      "Time spent waiting for a train's reservation lock.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		CommitConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_commit_conflicts_total",
			Help:      "Seat counter compare-and-swap misses that were retried.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.ReservationsTotal,
			m.LockWaitSeconds,
			m.CommitConflicts,
		)
	}
	return m
}
