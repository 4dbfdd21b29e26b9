// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package migrate applies schema migrations shipped with a release, using
// the migration runner of the project's framework.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomtom215/releasekeeper/internal/fsutil"
	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/shell"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// ErrMigrationFailed is returned when migrations could not be applied.
var ErrMigrationFailed = errors.New("migration failed")

// Snapshotter takes the database dump that precedes a migration.
type Snapshotter interface {
	PreMigrationSnapshot(ctx context.Context) (string, error)
}

// Request carries what a runner needs to migrate one release.
type Request struct {
	Dir         string
	Target      version.Version
	DatabaseURL string
}

// Rule pairs a project marker with the migration runner for it.
type Rule struct {
	Name    string
	Matches func(r shell.Runner, dir string) bool
	Command func(req Request) (shell.Command, error)
}

// DefaultRules is evaluated in order; the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "laravel",
			Matches: marker("artisan"),
			Command: func(req Request) (shell.Command, error) {
				return shell.Command{Name: "php", Args: []string{"artisan", "migrate", "--force"}}, nil
			},
		},
		{
			Name:    "django",
			Matches: marker("manage.py"),
			Command: func(req Request) (shell.Command, error) {
				return shell.Command{Name: "python3", Args: []string{"manage.py", "migrate", "--noinput"}}, nil
			},
		},
		{
			Name:    "script",
			Matches: marker("migrate.sh"),
			Command: func(req Request) (shell.Command, error) {
				return shell.Command{Name: "sh", Args: []string{"migrate.sh", req.Target.String()}}, nil
			},
		},
		{
			Name: "golang-migrate",
			Matches: func(r shell.Runner, dir string) bool {
				return fsutil.IsDir(filepath.Join(dir, "migrations")) && r.Available("migrate")
			},
			Command: func(req Request) (shell.Command, error) {
				if req.DatabaseURL == "" {
					return shell.Command{}, fmt.Errorf("DATABASE_URL is not set")
				}
				return shell.Command{
					Name: "migrate",
					Args: []string{"-path", "migrations", "-database", req.DatabaseURL, "up"},
				}, nil
			},
		},
	}
}

// Migrator runs the first matching rule after a pre-migration snapshot.
type Migrator struct {
	runner      shell.Runner
	snapshots   Snapshotter
	rules       []Rule
	databaseURL string
}

// New creates a Migrator. snapshots may be nil to skip the pre-migration
// dump. An empty databaseURL falls back to $DATABASE_URL.
func New(runner shell.Runner, snapshots Snapshotter, databaseURL string) *Migrator {
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	return &Migrator{
		runner:      runner,
		snapshots:   snapshots,
		rules:       DefaultRules(),
		databaseURL: databaseURL,
	}
}

// HasMigrations reports whether the tree ships migrations at all.
func HasMigrations(dir string) bool {
	return shell.Exists(filepath.Join(dir, "migrate.sh")) ||
		fsutil.IsDir(filepath.Join(dir, "migrations")) ||
		fsutil.IsDir(filepath.Join(dir, "database", "migrations"))
}

// Migrate applies the migrations in dir for target. A tree without
// migrations is a no-op and takes no snapshot.
func (m *Migrator) Migrate(ctx context.Context, dir string, target version.Version) error {
	log := logging.Ctx(ctx)

	if !HasMigrations(dir) {
		log.Info().Str("dir", dir).Msg("No migrations found, skipping")
		return nil
	}

	rule := m.detect(dir)
	if rule == nil {
		return fmt.Errorf("%w: migrations present but no runner recognised in %s", ErrMigrationFailed, dir)
	}

	req := Request{Dir: dir, Target: target, DatabaseURL: m.databaseURL}
	cmd, err := rule.Command(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMigrationFailed, rule.Name, err)
	}
	cmd.Dir = dir
	if m.databaseURL != "" {
		cmd.Env = map[string]string{"DATABASE_URL": m.databaseURL}
	}

	if m.snapshots != nil {
		snapshot, err := m.snapshots.PreMigrationSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("%w: pre-migration snapshot: %w", ErrMigrationFailed, err)
		}
		if snapshot != "" {
			log.Info().Str("snapshot", snapshot).Msg("Pre-migration snapshot ready")
		}
	}

	log.Info().Str("runner", rule.Name).Str("version", target.String()).Msg("Running migrations")
	if _, err := m.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMigrationFailed, rule.Name, err)
	}
	return nil
}

func (m *Migrator) detect(dir string) *Rule {
	for i := range m.rules {
		if m.rules[i].Matches(m.runner, dir) {
			return &m.rules[i]
		}
	}
	return nil
}

func marker(name string) func(shell.Runner, string) bool {
	return func(_ shell.Runner, dir string) bool {
		return shell.Exists(filepath.Join(dir, name))
	}
}
