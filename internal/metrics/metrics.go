package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook front door
	BatchesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrail_batches_stored_total",
			Help: "Total number of webhook batches written to the stage",
		},
	)

	BatchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrail_batch_bytes_total",
			Help: "Total bytes of batch payloads received",
		},
	)

	// Load pipeline
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtrail_loads_total",
			Help: "Batch load attempts by outcome",
		},
		[]string{"outcome"},
	)

	LoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailtrail_load_duration_seconds",
			Help:    "Duration of batch load transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RowsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtrail_event_rows_inserted_total",
			Help: "Total event rows inserted by the loader",
		},
	)

	// Read path
	QueryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtrail_query_requests_total",
			Help: "Event query requests by status",
		},
		[]string{"status"},
	)

	// Rate limiting
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtrail_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"client"},
	)
)

// Load outcome label values.
const (
	OutcomeLoaded    = "loaded"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)
