// Package observability exposes the Prometheus collectors of the sync client.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "habitsync"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	storeRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "requests_total",
		Help:      "Record store calls issued by the repositories.",
	}, []string{"collection", "op", "outcome"})

	storeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "request_duration_seconds",
		Help:      "Latency of record store calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"collection", "op"})

	reloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "reloads_total",
		Help:      "Collection reloads by kind and outcome.",
	}, []string{"kind", "outcome"})

	staleReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "stale_reloads_total",
		Help:      "Reload results discarded because a later reload already applied.",
	}, []string{"kind"})

	mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "mutations_total",
		Help:      "Mutating intents by name and outcome.",
	}, []string{"intent", "outcome"})

	collectionItems = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "collection_items",
		Help:      "Items held in the current snapshot of each collection.",
	}, []string{"kind"})

	lastLoadGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_load_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful load per collection.",
	}, []string{"kind"})

	droppedFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "dropped_failures_total",
		Help:      "Failures not delivered because the failure channel was full.",
	})

	changefeedPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "changefeed",
		Name:      "events_total",
		Help:      "Change events handed to a publisher, by publisher and outcome.",
	}, []string{"publisher", "outcome"})
)

func init() {
	prometheus.MustRegister(
		storeRequests,
		storeDuration,
		reloads,
		staleReloads,
		mutations,
		collectionItems,
		lastLoadGauge,
		droppedFailures,
		changefeedPublished,
	)
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveStoreCall records one record store call.
func ObserveStoreCall(collection, op string, started time.Time, err error) {
	storeRequests.WithLabelValues(collection, op, outcome(err)).Inc()
	storeDuration.WithLabelValues(collection, op).Observe(time.Since(started).Seconds())
}

// RecordReload counts a reload attempt.
func RecordReload(kind string, err error) {
	reloads.WithLabelValues(kind, outcome(err)).Inc()
}

// RecordStaleReload counts a discarded out-of-order reload result.
func RecordStaleReload(kind string) {
	staleReloads.WithLabelValues(kind).Inc()
}

// RecordMutation counts a mutating intent.
func RecordMutation(intent string, err error) {
	mutations.WithLabelValues(intent, outcome(err)).Inc()
}

// RecordSnapshot updates the item gauge and load watermark of kind.
func RecordSnapshot(kind string, items int, loadedAt time.Time) {
	collectionItems.WithLabelValues(kind).Set(float64(items))
	if loadedAt.IsZero() {
		return
	}
	lastLoadGauge.WithLabelValues(kind).Set(float64(loadedAt.Unix()))
}

// RecordDroppedFailure counts a failure that could not be queued.
func RecordDroppedFailure() {
	droppedFailures.Inc()
}

// RecordPublish counts a change event handed to publisher.
func RecordPublish(publisher string, err error) {
	changefeedPublished.WithLabelValues(publisher, outcome(err)).Inc()
}
