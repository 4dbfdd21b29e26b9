// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"releasekeeper.yaml",
	"releasekeeper.yml",
	"/etc/releasekeeper/config.yaml",
	"/etc/releasekeeper/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "RELEASEKEEPER_CONFIG"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Deploy: DeployConfig{
			Root:         "/opt/app",
			AppDir:       "current",
			MinFreeBytes: 1 << 30, // 1 GiB
		},
		Source: SourceConfig{
			Dir:          "/opt/app-source",
			BranchPrefix: "release-",
		},
		Backup: BackupConfig{
			Dir:       "/var/backups/app",
			Retention: 5,
		},
		Service: ServiceConfig{
			Manager:   "systemd",
			Unit:      "app.service",
			StopGrace: 30 * time.Second,
		},
		Health: HealthConfig{
			URL:            "http://127.0.0.1:8080/health",
			MaxAttempts:    12,
			Interval:       10 * time.Second,
			RequestTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			MySQL:        true,
			PostgreSQL:   true,
			Redis:        true,
			PostgresUser: "postgres",
			RedisDataDir: "/var/lib/redis",
		},
		Journal: JournalConfig{
			Enabled:   true,
			Path:      "/var/lib/releasekeeper/journal",
			Retention: 90 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "releasekeeper",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "/var/log/releasekeeper/run.log",
		},
	}
}

// Load builds the configuration from three layers, later layers winning:
// struct defaults, the YAML config file, then mapped environment variables.
//
// path selects the config file explicitly; when empty the file named by
// RELEASEKEEPER_CONFIG or the first of DefaultConfigPaths is used, if any.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional unless named explicitly)
	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Deploy root
	"deploy_root":    "deploy.root",
	"deploy_app_dir": "deploy.app_dir",
	"deploy_owner":   "deploy.owner",
	"deploy_group":   "deploy.group",
	"deploy_mode":    "deploy.mode",
	"min_free_bytes": "deploy.min_free_bytes",

	// Source repository
	"source_dir":           "source.dir",
	"source_remote":        "source.remote",
	"source_branch_prefix": "source.branch_prefix",

	// Backups
	"backup_dir":       "backup.dir",
	"backup_retention": "backup.retention",
	"backup_operator":  "backup.operator",

	// Service control
	"service_manager":       "service.manager",
	"service_unit":          "service.unit",
	"service_pid_file":      "service.pid_file",
	"service_start_command": "service.start_command",
	"service_work_dir":      "service.work_dir",
	"service_stop_grace":    "service.stop_grace",

	// Health gate
	"health_url":             "health.url",
	"health_port":            "health.port",
	"health_max_attempts":    "health.max_attempts",
	"health_interval":        "health.interval",
	"health_request_timeout": "health.request_timeout",

	// Databases
	"backup_mysql":        "database.mysql",
	"backup_postgresql":   "database.postgresql",
	"backup_redis":        "database.redis",
	"mysql_defaults_file": "database.mysql_defaults_file",
	"postgres_user":       "database.postgres_user",
	"redis_data_dir":      "database.redis_data_dir",
	"database_url":        "database.url",

	// Journal
	"journal_enabled":   "journal.enabled",
	"journal_path":      "journal.path",
	"journal_retention": "journal.retention",

	// Events
	"events_enabled":        "events.enabled",
	"nats_url":              "events.nats_url",
	"events_subject_prefix": "events.subject_prefix",

	// Metrics
	"metrics_textfile": "metrics.textfile",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
	"log_file":   "logging.file",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - DEPLOY_ROOT -> deploy.root
//   - BACKUP_RETENTION -> backup.retention
//   - NATS_URL -> events.nats_url
//
// Unmapped variables return "" and are skipped so that unrelated
// environment variables cannot leak into the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
