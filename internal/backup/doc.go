// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package backup snapshots the deployed artifact tree and database state
// before any mutating release step, and manages the retention store those
// snapshots live in.
//
// Backup Layout:
//
//	<backup.dir>/
//	├── backup_20261019_100000_1.2.3/
//	│   ├── app/                      copy of the deployed artifact tree
//	│   ├── database_mysql.sql        present when MySQL was detected
//	│   ├── database_postgresql.sql   present when PostgreSQL was detected
//	│   ├── database_redis.rdb        present when Redis was detected
//	│   ├── backup_info.txt           key-line metadata
//	│   └── manifest.json             file list with SHA-256 checksums
//	└── pre_migration_20261019_100005/
//	    └── database_mysql.sql
//
// A backup is never modified after it is written. Only PruneOldBackups
// removes it.
//
// Database engines are described by a table of Engine values. Each engine
// is detected by the presence of its client binary and an active systemd
// unit, and is dumped and restored through the shell runner.
//
// Usage:
//
//	mgr, err := backup.NewManager(cfg, shell.NewRunner())
//	b, err := mgr.CreateBackup(ctx, &current)
//	if b.IsEmpty() {
//	    // nothing to roll back to
//	}
//	deleted, err := mgr.PruneOldBackups(5)
package backup
