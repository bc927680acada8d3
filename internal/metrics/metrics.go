package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsApplied counts ingested events by kind and result
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_events_applied_total",
			Help: "Total number of ingested ledger events",
		},
		[]string{"kind", "result"},
	)

	// EventDuration tracks event application time
	EventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "treasury_event_duration_seconds",
			Help:    "Event application duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// ProposalsTotal counts proposal transitions by resulting status
	ProposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_proposals_total",
			Help: "Total number of proposal status transitions",
		},
		[]string{"status"},
	)

	// VotesCast counts votes by choice
	VotesCast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_votes_cast_total",
			Help: "Total number of votes cast",
		},
		[]string{"choice"},
	)

	// DistributionDuration tracks yield distribution time
	DistributionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "treasury_distribution_duration_seconds",
			Help:    "Yield distribution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SweepClosures counts proposals closed by the sweeper
	SweepClosures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_sweep_closures_total",
			Help: "Total number of proposals closed by the expiry sweeper",
		},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
