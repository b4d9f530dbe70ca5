package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operational counters and gauges for the service itself, exported on
// /metrics. These describe the engine, not the observations it stores.
var (
	ObservationsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsmon_observations_ingested_total",
		Help: "Metric observations accepted by the ingestion gateway",
	}, []string{"subject_kind"})

	ObservationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsmon_observations_rejected_total",
		Help: "Metric observations rejected by validation",
	}, []string{"field"})

	RuleEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsmon_rule_evaluations_total",
		Help: "Rule evaluations by outcome",
	}, []string{"outcome"})

	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsmon_alerts_created_total",
		Help: "Alerts created, by severity and origin",
	}, []string{"severity", "origin"})

	ActiveAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fsmon_active_alerts",
		Help: "Alerts currently in active status",
	})

	EvaluationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fsmon_evaluation_queue_depth",
		Help: "Pending evaluation triggers in the event queue",
	})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fsmon_rule_evaluation_duration_seconds",
		Help:    "Time spent evaluating a single rule",
		Buckets: prometheus.DefBuckets,
	})
)
