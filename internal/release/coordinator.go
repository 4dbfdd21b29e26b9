// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package release drives an update run through its states:
//
//	Idle -> CheckingPrereqs -> BackingUp -> Fetching -> Building
//	     -> Migrating -> Deploying -> HealthChecking -> Done
//
// A failure while migrating, deploying or health checking rolls back to the
// backup taken at the start of the run. Every transition is logged, counted,
// published as an event, and each run is appended to the journal.
//
// Runs are sequential. The coordinator does no locking of its own; callers
// must not run two updates against the same deploy root at once.
package release

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/events"
	"github.com/tomtom215/releasekeeper/internal/health"
	"github.com/tomtom215/releasekeeper/internal/journal"
	"github.com/tomtom215/releasekeeper/internal/rollback"
	"github.com/tomtom215/releasekeeper/internal/steps"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// BackupManager creates and prunes backups. *backup.Manager satisfies it.
type BackupManager interface {
	CreateBackup(ctx context.Context, current *version.Version) (*backup.Backup, error)
	PruneOldBackups(retention int) (int, error)
}

// Fetcher stages the tree for a version and returns its location.
type Fetcher interface {
	Fetch(ctx context.Context, target version.Version) (string, error)
}

// Builder builds a staged tree.
type Builder interface {
	Build(ctx context.Context, dir string) error
}

// Migrator applies migrations shipped in a staged tree.
type Migrator interface {
	Migrate(ctx context.Context, dir string, target version.Version) error
}

// Deployer swaps a staged tree into place.
type Deployer interface {
	Deploy(ctx context.Context, location string, target version.Version) error
	CleanupStaging(ctx context.Context) steps.Result
}

// RollbackController restores a backup.
type RollbackController interface {
	Rollback(ctx context.Context, b *backup.Backup) (rollback.Result, error)
}

// Deps are the collaborators of a Coordinator. Journal and Events may be
// nil; they default to no-ops.
type Deps struct {
	Store    version.Store
	Backups  BackupManager
	Fetcher  Fetcher
	Builder  Builder
	Migrator Migrator
	Deployer Deployer
	Health   health.Checker
	Rollback RollbackController
	Journal  journal.Recorder
	Events   events.Publisher
}

func (d *Deps) validate() error {
	switch {
	case d.Store == nil:
		return errors.New("release: version store is required")
	case d.Backups == nil:
		return errors.New("release: backup manager is required")
	case d.Fetcher == nil:
		return errors.New("release: fetcher is required")
	case d.Builder == nil:
		return errors.New("release: builder is required")
	case d.Migrator == nil:
		return errors.New("release: migrator is required")
	case d.Deployer == nil:
		return errors.New("release: deployer is required")
	case d.Health == nil:
		return errors.New("release: health checker is required")
	case d.Rollback == nil:
		return errors.New("release: rollback controller is required")
	}
	if d.Journal == nil {
		d.Journal = journal.Nop{}
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return nil
}

// Config holds run parameters.
type Config struct {
	// Root is the deploy root checked for free space and writability.
	Root string

	// MinFreeBytes is the free space floor. Zero means DefaultMinFreeBytes.
	MinFreeBytes uint64

	// Retention is how many backups survive a successful update.
	Retention int

	Endpoint health.Endpoint
	Operator string
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithFreeSpace replaces the disk free space probe.
func WithFreeSpace(fn FreeSpaceFunc) Option {
	return func(c *Coordinator) { c.freeSpace = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator runs updates and operator rollbacks.
type Coordinator struct {
	cfg       Config
	deps      Deps
	freeSpace FreeSpaceFunc
	now       func() time.Time
}

// New creates a Coordinator.
func New(cfg Config, deps Deps, opts ...Option) (*Coordinator, error) {
	if cfg.Root == "" {
		return nil, errors.New("release: deploy root is required")
	}
	if cfg.MinFreeBytes == 0 {
		cfg.MinFreeBytes = DefaultMinFreeBytes
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:       cfg,
		deps:      deps,
		freeSpace: DiskFree,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Report describes a finished run.
type Report struct {
	RunID      string
	Kind       journal.Kind
	Current    string
	Target     string
	FinalState State
	Outcome    Outcome
	Backup     *backup.Backup
	Health     health.Outcome
	Rollback   *rollback.Result
	Steps      []steps.Result

	// Err is the failure that ended the run. A run that rolled back
	// successfully still carries the error that triggered the rollback.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time

	failedIn State
}

// Succeeded reports whether the run reached its goal without rolling back.
func (r *Report) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded || r.Outcome == OutcomeNoOp
}

// Summary is a one line description for operators.
func (r *Report) Summary() string {
	switch r.Outcome {
	case OutcomeNoOp:
		return fmt.Sprintf("already at version %s, nothing to do", r.Target)
	case OutcomeSucceeded:
		if r.Kind == journal.KindRollback {
			return fmt.Sprintf("rolled back to version %s", r.Target)
		}
		return fmt.Sprintf("updated %s -> %s", r.Current, r.Target)
	case OutcomeRolledBack:
		return fmt.Sprintf("update to %s failed and was rolled back to %s: %v", r.Target, r.Current, r.Err)
	default:
		return fmt.Sprintf("%s failed in %s: %v", r.Kind, r.lastActiveState(), r.Err)
	}
}

func (r *Report) lastActiveState() State {
	if r.failedIn != "" {
		return r.failedIn
	}
	return r.FinalState
}
