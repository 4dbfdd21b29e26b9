// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

/*
Package metrics provides Prometheus instrumentation for release runs.

# Overview

The package provides metrics for:
  - Run outcomes and durations (update, rollback)
  - Coordinator state transitions and per-stage durations
  - Health gate probe attempts
  - Backup creation, size and retention pruning
  - Automatic and manual rollbacks
  - Failures of non-critical steps (permissions, cleanup)
  - Lifecycle event publishing

# Export

Releasekeeper exits after each command, so nothing serves /metrics. When
metrics.textfile is configured, the CLI calls WriteTextfile on exit and the
node exporter textfile collector picks the file up:

	metrics:
	  textfile: /var/lib/node_exporter/textfile/releasekeeper.prom

# Usage

	start := time.Now()
	err := runStage()
	metrics.RecordStage("building", time.Since(start), err)

All collectors are registered on the default registry with promauto.
*/
package metrics
