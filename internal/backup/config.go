// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package backup

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds backup-related configuration
type Config struct {
	// Directory holding all backups
	Dir string

	// Number of backups kept by PruneOldBackups
	Retention int

	// Deployed artifact tree to snapshot
	SourceDir string

	// Operator recorded in backup_info.txt; defaults to the current user
	Operator string

	// Database engines to consider
	Database DatabaseConfig
}

// DatabaseConfig toggles engines and carries the non-secret connection
// settings their client tools need. Passwords come from the client's own
// environment (MYSQL_PWD, PGPASSWORD, option files).
type DatabaseConfig struct {
	MySQL      bool
	PostgreSQL bool
	Redis      bool

	// Passed to mysqldump/mysql as --defaults-extra-file when set
	MySQLDefaultsFile string

	// Role used by pg_dumpall/psql
	PostgresUser string

	// Directory Redis loads dump.rdb from at startup
	RedisDataDir string
}

// DefaultDatabaseConfig enables every engine with stock Debian paths.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MySQL:        true,
		PostgreSQL:   true,
		Redis:        true,
		PostgresUser: "postgres",
		RedisDataDir: "/var/lib/redis",
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("backup directory is required")
	}
	if !filepath.IsAbs(c.Dir) {
		return fmt.Errorf("backup directory must be an absolute path, got: %s", c.Dir)
	}
	if c.SourceDir == "" {
		return fmt.Errorf("backup source directory is required")
	}
	if c.Retention < 1 {
		return fmt.Errorf("backup retention must be at least 1, got: %d", c.Retention)
	}
	if c.Database.Redis && c.Database.RedisDataDir == "" {
		return fmt.Errorf("redis data directory is required when redis backups are enabled")
	}
	return nil
}

// EnsureDir creates the backup directory if it doesn't exist
func (c *Config) EnsureDir() error {
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", c.Dir, err)
	}
	return nil
}
