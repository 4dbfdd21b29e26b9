// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for release runs. Releasekeeper is a one-shot CLI, so
// the registry is flushed to a node exporter textfile at the end of each
// run instead of being scraped.
var (
	// Run Metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "releasekeeper_runs_total",
			Help: "Total number of release runs by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: update, rollback; outcome: succeeded, noop, rolled_back, failed
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "releasekeeper_run_duration_seconds",
			Help:    "Wall time of release runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"kind"},
	)

	LastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "releasekeeper_last_run_timestamp_seconds",
			Help: "Unix time the last run of each outcome finished",
		},
		[]string{"outcome"},
	)

	DeployedVersionInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "releasekeeper_deployed_version_info",
			Help: "Currently deployed version, value is always 1",
		},
		[]string{"version"},
	)

	// State Machine Metrics
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "releasekeeper_state_transitions_total",
			Help: "Coordinator state transitions",
		},
		[]string{"from", "to"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "releasekeeper_stage_duration_seconds",
			Help:    "Duration of each workflow stage in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 9), // 0.1s .. ~11m
		},
		[]string{"stage", "result"},
	)

	// Health Gate Metrics
	HealthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "releasekeeper_health_attempts_total",
			Help: "Health gate probe attempts by result",
		},
		[]string{"result"}, // "ok", "port_closed", "bad_status", "error"
	)

	// Backup Metrics
	BackupsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "releasekeeper_backups_created_total",
			Help: "Total number of backups written",
		},
	)

	BackupsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "releasekeeper_backups_pruned_total",
			Help: "Total number of backups deleted by retention",
		},
	)

	BackupSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "releasekeeper_last_backup_size_bytes",
			Help: "Size of the most recent backup",
		},
	)

	// Rollback Metrics
	Rollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "releasekeeper_rollbacks_total",
			Help: "Rollbacks by trigger and result",
		},
		[]string{"trigger", "result"}, // trigger: automatic, manual
	)

	// Non-critical step failures are swallowed by the workflow; this is
	// where they stay visible.
	NonCriticalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "releasekeeper_noncritical_failures_total",
			Help: "Failures of best-effort steps that did not fail the run",
		},
		[]string{"step"},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "releasekeeper_events_published_total",
			Help: "Lifecycle events published to NATS",
		},
		[]string{"result"},
	)
)

// RecordRun records the outcome of a finished run.
func RecordRun(kind, outcome string, duration time.Duration) {
	RunsTotal.WithLabelValues(kind, outcome).Inc()
	RunDuration.WithLabelValues(kind).Observe(duration.Seconds())
	LastRunTimestamp.WithLabelValues(outcome).SetToCurrentTime()
}

// RecordTransition counts a state change.
func RecordTransition(from, to string) {
	StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordStage records how long a stage took and whether it failed.
func RecordStage(stage string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StageDuration.WithLabelValues(stage, result).Observe(duration.Seconds())
}

// RecordHealthAttempt counts one health probe.
func RecordHealthAttempt(result string) {
	HealthAttempts.WithLabelValues(result).Inc()
}

// RecordBackup records a written backup.
func RecordBackup(sizeBytes int64) {
	BackupsCreated.Inc()
	BackupSizeBytes.Set(float64(sizeBytes))
}

// RecordPruned adds pruned backups.
func RecordPruned(count int) {
	BackupsPruned.Add(float64(count))
}

// RecordRollback counts a rollback attempt.
func RecordRollback(trigger string, err error) {
	result := "succeeded"
	if err != nil {
		result = "failed"
	}
	Rollbacks.WithLabelValues(trigger, result).Inc()
}

// RecordNonCriticalFailure counts a swallowed step failure.
func RecordNonCriticalFailure(step string) {
	NonCriticalFailures.WithLabelValues(step).Inc()
}

// RecordEventPublish counts an event publish attempt.
func RecordEventPublish(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(result).Inc()
}

// SetDeployedVersion replaces the deployed version info series.
func SetDeployedVersion(version string) {
	DeployedVersionInfo.Reset()
	DeployedVersionInfo.WithLabelValues(version).Set(1)
}

// WriteTextfile writes the default registry to path in the text exposition
// format, atomically, for the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
