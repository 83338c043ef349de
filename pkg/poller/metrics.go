package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	batchesEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitysync_batches_total",
			Help: "The total number of batches emitted by the poller",
		},
	)
	changesEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitysync_changes_total",
			Help: "The total number of normalized changes emitted",
		},
	)
	recordsPolled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitysync_records_total",
			Help: "The total number of raw records pulled from the stream",
		},
	)
	decodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitysync_decode_failures_total",
			Help: "The total number of records skipped because they could not be decoded",
		},
	)
	recordsFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitysync_records_filtered_total",
			Help: "The total number of records dropped by domain or namespace filters",
		},
	)
	recordsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitysync_records_deduplicated_total",
			Help: "The total number of records dropped as duplicates within one poll cycle",
		},
	)
)
