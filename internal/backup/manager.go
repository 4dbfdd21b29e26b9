// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

/*
manager.go - Core Backup Manager

This file contains the Manager struct and snapshot creation.

Manager Responsibilities:
  - Artifact tree copy into <backup>/app
  - Database dumps for every detected engine
  - backup_info.txt and manifest.json metadata
  - Pre-migration dump-only snapshots

The Manager keeps no in-memory index: the backups root is the source of
truth and every listing re-reads it.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/tomtom215/releasekeeper/internal/fsutil"
	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/shell"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// Manager creates, lists, restores and prunes backups.
type Manager struct {
	cfg     *Config
	runner  shell.Runner
	engines []Engine
	now     func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithEngines replaces the engine table built from Config.Database.
func WithEngines(engines []Engine) Option {
	return func(m *Manager) { m.engines = engines }
}

// WithClock sets the time source used for timestamps and directory names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a new backup manager
func NewManager(cfg *Config, runner shell.Runner, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backup configuration is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("shell runner is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backup configuration validation failed: %w", err)
	}

	m := &Manager{
		cfg:     cfg,
		runner:  runner,
		engines: DefaultEngines(cfg.Database),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Dir returns the backups root.
func (m *Manager) Dir() string {
	return m.cfg.Dir
}

// CreateBackup snapshots the artifact tree and every detected database.
//
// current is the recorded version, or nil when none is recorded. When the
// artifact tree does not exist a warning is logged and the empty-backup
// sentinel is returned with a nil error.
func (m *Manager) CreateBackup(ctx context.Context, current *version.Version) (*Backup, error) {
	log := logging.Ctx(ctx)
	label := versionLabel(current)
	now := m.now().UTC()

	if !fsutil.IsDir(m.cfg.SourceDir) {
		log.Warn().
			Str("source", m.cfg.SourceDir).
			Msg("Artifact tree not found, nothing to back up")
		return &Backup{
			CreatedAt: now,
			Version:   label,
			Source:    m.cfg.SourceDir,
			Empty:     true,
		}, nil
	}

	if err := m.cfg.EnsureDir(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	path, err := m.reserveDir(backupPrefix + now.Format(timestampLayout) + "_" + label)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	b := &Backup{
		ID:        uuid.New().String(),
		Path:      path,
		CreatedAt: now,
		Version:   label,
		Source:    m.cfg.SourceDir,
		Host:      hostname(),
		Operator:  m.operator(),
	}

	if err := m.populate(ctx, b); err != nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove incomplete backup")
		}
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	log.Info().
		Str("backup_id", b.ID).
		Str("path", b.Path).
		Str("version", b.Version).
		Strs("databases", b.Databases).
		Str("size", humanize.IBytes(uint64(b.SizeBytes))). //nolint:gosec // Size is never negative
		Msg("Backup created")

	return b, nil
}

func (m *Manager) populate(ctx context.Context, b *Backup) error {
	if err := fsutil.CopyTree(m.cfg.SourceDir, b.AppDir(), nil); err != nil {
		return fmt.Errorf("copy artifact tree %s: %w", m.cfg.SourceDir, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dumped, err := m.dumpInto(ctx, b.Path)
	if err != nil {
		return err
	}
	b.Databases = dumped

	manifest, err := buildManifest(b)
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	b.SizeBytes = manifest.TotalSize

	if err := writeManifest(b.Path, manifest); err != nil {
		return err
	}
	return writeInfo(b)
}

// DumpDatabases dumps every detected engine into dir and returns the names
// of the engines dumped.
func (m *Manager) DumpDatabases(ctx context.Context, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}
	dumped, err := m.dumpInto(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}
	return dumped, nil
}

// PreMigrationSnapshot takes a dump-only snapshot under
// <backup.dir>/pre_migration_<ts>/ and returns its path. A snapshot with no
// detected engines leaves no directory behind.
func (m *Manager) PreMigrationSnapshot(ctx context.Context) (string, error) {
	if err := m.cfg.EnsureDir(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	dir, err := m.reserveDir(preMigrationPrefix + m.now().UTC().Format(timestampLayout))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	dumped, err := m.DumpDatabases(ctx, dir)
	if err != nil {
		os.RemoveAll(dir) //nolint:errcheck,gosec // Partial snapshot is useless
		return "", err
	}
	if len(dumped) == 0 {
		os.Remove(dir) //nolint:errcheck,gosec // Empty directory
		return "", nil
	}

	logging.Ctx(ctx).Info().
		Str("path", dir).
		Strs("databases", dumped).
		Msg("Pre-migration database snapshot taken")
	return dir, nil
}

func (m *Manager) dumpInto(ctx context.Context, dir string) ([]string, error) {
	var dumped []string
	for _, engine := range m.engines {
		if !engine.Detect(ctx, m.runner) {
			continue
		}
		dest := filepath.Join(dir, engine.DumpFile())
		if err := engine.Dump(ctx, m.runner, dest); err != nil {
			return nil, fmt.Errorf("dump %s: %w", engine.Name, err)
		}
		dumped = append(dumped, engine.Name)
	}
	return dumped, nil
}

// reserveDir creates a new directory under the backups root. Names that
// collide within the same second get a numeric suffix.
func (m *Manager) reserveDir(name string) (string, error) {
	for i := 1; i < 100; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d", name, i)
		}
		path := filepath.Join(m.cfg.Dir, candidate)
		err := os.Mkdir(path, 0o750)
		if err == nil {
			return path, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("could not allocate a backup directory for %s", name)
}

func (m *Manager) operator() string {
	if m.cfg.Operator != "" {
		return m.cfg.Operator
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
