package telemetry

import "github.com/prometheus/client_golang/prometheus"

// AdmissionDecisionsTotal counts admission outcomes by the check that ran
// and the verdict it reached.
var AdmissionDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "labondemand",
		Subsystem: "admission",
		Name:      "decisions_total",
		Help:      "Total number of admission decisions by check and verdict.",
	},
	[]string{"check", "verdict"},
)

// ObjectApplyDuration tracks how long a single cluster object apply takes.
var ObjectApplyDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "labondemand",
		Subsystem: "orchestrator",
		Name:      "object_apply_duration_seconds",
		Help:      "Duration of a single cluster object apply, by object kind.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"kind"},
)

// DeploymentsCreatedTotal counts successful lab creations by stack kind.
var DeploymentsCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "labondemand",
		Subsystem: "deployments",
		Name:      "created_total",
		Help:      "Total number of labs created, by stack kind.",
	},
	[]string{"stack"},
)

// ReconcilerCycleDuration tracks full reconciler cycle duration.
var ReconcilerCycleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "labondemand",
		Subsystem: "reconciler",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a full lifecycle reconciler cycle.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	},
)

// ReconcilerEntityErrorsTotal counts per-entity failures inside a reconciler
// phase; a phase never aborts because one entity failed.
var ReconcilerEntityErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "labondemand",
		Subsystem: "reconciler",
		Name:      "entity_errors_total",
		Help:      "Total number of per-entity errors encountered during a reconciler phase.",
	},
	[]string{"phase"},
)

// OrphanNamespaceDecisionsTotal counts orphan-namespace sweep outcomes.
var OrphanNamespaceDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "labondemand",
		Subsystem: "reconciler",
		Name:      "orphan_namespace_decisions_total",
		Help:      "Total number of orphan namespace sweep decisions, by outcome.",
	},
	[]string{"outcome"}, // "deleted", "skipped_active_deployments", "skipped_age_grace"
)

// All returns all LabOnDemand-specific metrics for registration. No code in
// this module records into these collectors, so they are exported at zero.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		AdmissionDecisionsTotal,
		ObjectApplyDuration,
		DeploymentsCreatedTotal,
		ReconcilerCycleDuration,
		ReconcilerEntityErrorsTotal,
		OrphanNamespaceDecisionsTotal,
	}
}
