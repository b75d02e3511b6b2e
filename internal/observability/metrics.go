package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: All metrics are defined globally here, registered on the default
// registry. Tests read them back through the testsupport helpers.

// namespace defines the global prefix for all metrics (e.g., bifrost_...).
const namespace = "bifrost"

// lowLatencyBuckets covers local decisioning, which is expected to finish well
// under a millisecond for typical artifacts.
// Range: 100µs to 250ms.
var lowLatencyBuckets = []float64{.0001, .00025, .0005, .001, .002, .005, .010, .025, .050, .100, .250}

var (
	// -------------------------------------------------------------------------
	// ARTIFACT PROVIDER
	// -------------------------------------------------------------------------

	// ArtifactFetchesTotal counts artifact download attempts by result.
	// Metric: bifrost_artifact_fetches_total
	ArtifactFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "artifact",
		Name:      "fetches_total",
		Help:      "Total artifact downloads by result (updated, not_modified, error)",
	}, []string{"result"})

	// ArtifactFetchDuration measures the latency of artifact downloads, retries included.
	// Metric: bifrost_artifact_fetch_duration_seconds
	ArtifactFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "artifact",
		Name:      "fetch_duration_seconds",
		Help:      "Time taken to download and compile the artifact",
		Buckets:   prometheus.DefBuckets,
	})

	// ArtifactInfo exposes the version of the artifact currently in use.
	ArtifactInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "artifact",
		Name:      "info",
		Help:      "Set to 1 for the artifact version currently served",
	}, []string{"version"})

	// ArtifactLastSuccess is the unix time of the last successful download.
	ArtifactLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "artifact",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful artifact download",
	})

	// -------------------------------------------------------------------------
	// DECISIONING
	// -------------------------------------------------------------------------

	// DecisionsTotal counts GetOffers calls.
	// Metric: bifrost_decisioning_requests_total
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decisioning",
		Name:      "requests_total",
		Help:      "Total on-device decisioning requests by status (200, 206, error)",
	}, []string{"status"})

	// DecisionDuration measures the latency of a full GetOffers call.
	// Metric: bifrost_decisioning_duration_seconds
	DecisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "decisioning",
		Name:      "duration_seconds",
		Help:      "Time taken to evaluate an on-device decisioning request",
		Buckets:   lowLatencyBuckets,
	})

	// RulesEvaluatedTotal counts rule evaluations by outcome.
	RulesEvaluatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decisioning",
		Name:      "rules_evaluated_total",
		Help:      "Total rule condition evaluations by outcome (matched, unmatched)",
	}, []string{"outcome"})

	// --- Allocation memo (Otter) ---

	AllocationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decisioning",
		Name:      "allocation_cache_hits_total",
		Help:      "Total allocation lookups served from the in-memory memo",
	})

	AllocationCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decisioning",
		Name:      "allocation_cache_misses_total",
		Help:      "Total allocation lookups that required hashing",
	})

	// -------------------------------------------------------------------------
	// GEO
	// -------------------------------------------------------------------------

	// GeoLookupsTotal counts geo lookups by result.
	// Metric: bifrost_geo_lookups_total
	GeoLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "geo",
		Name:      "lookups_total",
		Help:      "Total geo lookups by result (success, error)",
	}, []string{"result"})

	// -------------------------------------------------------------------------
	// EVENTS
	// -------------------------------------------------------------------------

	// EventsDroppedTotal counts events a subscriber missed because its buffer was full.
	// Metric: bifrost_events_dropped_total
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Total events dropped for slow subscribers by event type",
	}, []string{"type"})

	// -------------------------------------------------------------------------
	// NOTIFICATIONS
	// -------------------------------------------------------------------------

	NotificationsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "queued_total",
		Help:      "Total display notifications queued",
	})

	// NotificationsDeduplicated counts event tokens skipped because they were already queued.
	NotificationsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "deduplicated_total",
		Help:      "Total event tokens skipped by the dedup set",
	})

	// NotificationDedupSize tracks the dedup set, which is never cleared.
	NotificationDedupSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "dedup_keys_count",
		Help:      "Current number of keys retained by the notification dedup set",
	})

	// NotificationFlushesTotal counts dispatched batches by result.
	// Metric: bifrost_notifications_flushes_total
	NotificationFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "flushes_total",
		Help:      "Total notification batches handed to the transport by result (success, error, dropped)",
	}, []string{"result"})
)
