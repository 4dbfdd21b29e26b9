// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package main is the entry point for the releasekeeper command.
//
// Releasekeeper updates one application on one host to a tagged version and
// rolls back to the previous release when migration, deployment or the
// health gate fails.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (DEPLOY_ROOT, BACKUP_DIR, HEALTH_URL, ...)
//   - Config file (--config, $RELEASEKEEPER_CONFIG or ./releasekeeper.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the running command. An update interrupted after
// deployment started still completes its rollback.
//
// # Example Usage
//
//	releasekeeper check
//	releasekeeper update 1.4.0
//	releasekeeper rollback
//	releasekeeper rollback /var/backups/app/backup_20261019_101500_1.3.2
//	releasekeeper history 5
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/releasekeeper/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, cli.Load)
	stop()
	os.Exit(code)
}
