package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsRetrieved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snowball",
		Name:      "batch_items_retrieved_total",
		Help:      "The total number of work items retrieved by the batch engine.",
	}, []string{"stage"})

	ItemsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snowball",
		Name:      "batch_items_skipped_total",
		Help:      "The total number of empty work items recorded without retrieval.",
	}, []string{"stage"})

	RetrievalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snowball",
		Name:      "batch_retrieval_failures_total",
		Help:      "The total number of batch runs that ended on a retrieval error.",
	}, []string{"stage"})

	CheckpointFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snowball",
		Name:      "batch_checkpoint_flushes_total",
		Help:      "The total number of checkpoint flushes.",
	}, []string{"stage"})

	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snowball",
		Name:      "api_requests_total",
		Help:      "The total number of remote API requests by endpoint and status code.",
	}, []string{"endpoint", "code"})
)
