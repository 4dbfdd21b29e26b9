// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tomtom215/releasekeeper/internal/validation"
)

// Validate checks field rules, then the rules that span fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateService(); err != nil {
		return err
	}

	if err := c.validateBackupLocation(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateJournal(); err != nil {
		return err
	}

	return c.validateEvents()
}

// validateService requires the settings of the selected manager.
func (c *Config) validateService() error {
	switch c.Service.Manager {
	case "systemd":
		if c.Service.Unit == "" {
			return fmt.Errorf("SERVICE_UNIT is required when SERVICE_MANAGER=systemd")
		}
	case "process":
		if c.Service.PIDFile == "" {
			return fmt.Errorf("SERVICE_PID_FILE is required when SERVICE_MANAGER=process")
		}
		if c.Service.StartCommand == "" {
			return fmt.Errorf("SERVICE_START_COMMAND is required when SERVICE_MANAGER=process")
		}
	}
	return nil
}

// validateBackupLocation keeps backups out of trees that a deploy replaces.
func (c *Config) validateBackupLocation() error {
	backupDir := filepath.Clean(c.Backup.Dir)
	for _, replaced := range []string{c.Deploy.AppPath(), filepath.Join(c.Deploy.Root, ".staging")} {
		if isWithin(backupDir, replaced) {
			return fmt.Errorf("BACKUP_DIR %s must not be inside %s, which is replaced on every deploy", backupDir, replaced)
		}
	}
	if isWithin(filepath.Clean(c.Source.Dir), c.Deploy.AppPath()) {
		return fmt.Errorf("SOURCE_DIR must not be inside the deployed tree %s", c.Deploy.AppPath())
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Redis && c.Database.RedisDataDir == "" {
		return fmt.Errorf("REDIS_DATA_DIR is required when BACKUP_REDIS=true")
	}
	return nil
}

func (c *Config) validateJournal() error {
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("JOURNAL_PATH is required when JOURNAL_ENABLED=true")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if c.Events.URL == "" {
		return fmt.Errorf("NATS_URL is required when EVENTS_ENABLED=true")
	}
	if !strings.HasPrefix(c.Events.URL, "nats://") && !strings.HasPrefix(c.Events.URL, "tls://") {
		return fmt.Errorf("NATS_URL must use the nats:// or tls:// scheme, got %q", c.Events.URL)
	}
	return nil
}

// isWithin reports whether path equals dir or lies below it.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
