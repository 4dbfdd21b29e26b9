// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package config

import (
	"path/filepath"
	"time"
)

// Config holds the complete releasekeeper configuration.
type Config struct {
	Deploy   DeployConfig   `koanf:"deploy"`
	Source   SourceConfig   `koanf:"source"`
	Backup   BackupConfig   `koanf:"backup"`
	Service  ServiceConfig  `koanf:"service"`
	Health   HealthConfig   `koanf:"health"`
	Database DatabaseConfig `koanf:"database"`
	Journal  JournalConfig  `koanf:"journal"`
	Events   EventsConfig   `koanf:"events"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DeployConfig describes the deploy root on this host.
type DeployConfig struct {
	// Root holds the running tree, the VERSION file and staging.
	Root string `koanf:"root" validate:"required,abspath"`

	// AppDir is the running tree's directory name under Root.
	// Default: current
	AppDir string `koanf:"app_dir" validate:"required,excludesall=/"`

	// Owner, Group and Mode are reapplied to the tree after every swap.
	// Empty values are left alone.
	Owner string `koanf:"owner"`
	Group string `koanf:"group"`
	Mode  string `koanf:"mode" validate:"omitempty,filemode"`

	// MinFreeBytes is the free space an update requires at Root.
	// Default: 1 GiB
	MinFreeBytes uint64 `koanf:"min_free_bytes" validate:"gt=0"`
}

// AppPath returns the absolute running tree path.
func (d DeployConfig) AppPath() string {
	return filepath.Join(d.Root, d.AppDir)
}

// SourceConfig locates the release source repository.
type SourceConfig struct {
	// Dir is the local git checkout.
	Dir string `koanf:"dir" validate:"required,abspath"`

	// Remote is cloned into Dir on first use and fetched afterwards.
	// Empty means Dir is managed by someone else.
	Remote string `koanf:"remote"`

	// BranchPrefix names branches created from annotated release tags.
	// Default: release-
	BranchPrefix string `koanf:"branch_prefix"`
}

// BackupConfig controls backups taken before every update.
type BackupConfig struct {
	Dir string `koanf:"dir" validate:"required,abspath"`

	// Retention is how many backups survive pruning.
	// Default: 5
	Retention int `koanf:"retention" validate:"min=1"`

	// Operator is recorded in backup metadata. Default: the current user.
	Operator string `koanf:"operator"`
}

// ServiceConfig selects how the application is stopped and started.
type ServiceConfig struct {
	// Manager is systemd or process.
	Manager string `koanf:"manager" validate:"oneof=systemd process"`

	// Unit is the systemd unit name.
	Unit string `koanf:"unit"`

	// PIDFile, StartCommand and WorkDir drive the process manager.
	PIDFile      string `koanf:"pid_file"`
	StartCommand string `koanf:"start_command"`
	WorkDir      string `koanf:"work_dir"`

	// StopGrace is how long a stop may take before SIGKILL.
	StopGrace time.Duration `koanf:"stop_grace" validate:"gt=0"`
}

// HealthConfig configures the health gate.
type HealthConfig struct {
	// URL is the liveness endpoint. Only HTTP 200 counts as healthy.
	URL string `koanf:"url" validate:"required,url"`

	// Port must accept TCP connections before URL is tried. 0 uses the URL's port.
	Port int `koanf:"port" validate:"min=0,max=65535"`

	MaxAttempts    int           `koanf:"max_attempts" validate:"min=1"`
	Interval       time.Duration `koanf:"interval" validate:"gt=0"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

// DatabaseConfig toggles database engines for backups and restores.
// Credentials stay in the client tools' own environment or option files.
type DatabaseConfig struct {
	MySQL      bool `koanf:"mysql"`
	PostgreSQL bool `koanf:"postgresql"`
	Redis      bool `koanf:"redis"`

	MySQLDefaultsFile string `koanf:"mysql_defaults_file"`
	PostgresUser      string `koanf:"postgres_user"`
	RedisDataDir      string `koanf:"redis_data_dir"`

	// URL is passed to golang-migrate style migration runners.
	URL string `koanf:"url"`
}

// JournalConfig controls the run journal.
type JournalConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`

	// Retention drops run records older than this. 0 keeps them forever.
	Retention time.Duration `koanf:"retention" validate:"min=0"`
}

// EventsConfig controls lifecycle event publishing over NATS.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix" validate:"required,excludesall=*>"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	// Textfile is written after every command for the node exporter
	// textfile collector. Empty disables it.
	Textfile string `koanf:"textfile" validate:"omitempty,abspath"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level" validate:"oneof=trace debug info warn error"`

	// Format is the output format: json or console.
	// Default: console
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`

	// File is the append-only run log. Empty logs to stderr only.
	File string `koanf:"file"`
}
