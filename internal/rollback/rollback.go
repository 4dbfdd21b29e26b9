// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package rollback restores a backup over the running deployment and
// re-validates health. There is no fallback beyond it: a failed rollback
// is reported as-is.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/deploy"
	"github.com/tomtom215/releasekeeper/internal/health"
	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/service"
	"github.com/tomtom215/releasekeeper/internal/shell"
	"github.com/tomtom215/releasekeeper/internal/steps"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// ErrRollbackFailed is returned when a backup could not be restored or the
// restored service is unhealthy.
var ErrRollbackFailed = errors.New("rollback failed")

// Restorer restores backup contents. *backup.Manager satisfies it.
type Restorer interface {
	RestoreTree(b *backup.Backup, dest string) error
	RestoreDatabases(ctx context.Context, b *backup.Backup) ([]string, error)
}

// Config wires a Controller.
type Config struct {
	AppDir   string
	Perms    deploy.Permissions
	Endpoint health.Endpoint
}

// Result describes a finished rollback.
type Result struct {
	Backup    *backup.Backup
	Version   string
	Databases []string
	Health    health.Outcome
}

// Controller performs rollbacks.
type Controller struct {
	cfg      Config
	restorer Restorer
	svc      service.Controller
	gate     health.Checker
	store    version.Store
	runner   shell.Runner
}

// New creates a Controller.
func New(cfg Config, restorer Restorer, svc service.Controller, gate health.Checker, store version.Store, runner shell.Runner) *Controller {
	return &Controller{
		cfg:      cfg,
		restorer: restorer,
		svc:      svc,
		gate:     gate,
		store:    store,
		runner:   runner,
	}
}

// Rollback restores b. The backup is verified before anything is touched;
// a backup without its artifact tree fails with nothing changed. Once the
// tree is back the version label follows it, even if the restored service
// then fails its health gate.
func (c *Controller) Rollback(ctx context.Context, b *backup.Backup) (Result, error) {
	log := logging.Ctx(ctx)
	res := Result{Backup: b}

	if b.IsEmpty() {
		return res, fmt.Errorf("%w: no backup to restore", ErrRollbackFailed)
	}
	if err := backup.Verify(b); err != nil {
		return res, fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}

	recorded, versionErr := b.RecordedVersion()
	if versionErr != nil && !errors.Is(versionErr, version.ErrUnknown) {
		return res, fmt.Errorf("%w: backup version label: %w", ErrRollbackFailed, versionErr)
	}

	log.Warn().
		Str("backup", b.Path).
		Str("version", b.Version).
		Msg("Rolling back")

	steps.RunNonCritical(ctx, "rollback_stop_service", c.svc.Stop)

	if err := os.RemoveAll(c.cfg.AppDir); err != nil {
		return res, fmt.Errorf("%w: remove %s: %w", ErrRollbackFailed, c.cfg.AppDir, err)
	}
	if err := c.restorer.RestoreTree(b, c.cfg.AppDir); err != nil {
		return res, fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}

	if versionErr == nil {
		if err := c.store.SetCurrent(recorded); err != nil {
			return res, fmt.Errorf("%w: restore version label: %w", ErrRollbackFailed, err)
		}
		res.Version = recorded.String()
	} else {
		if err := c.store.Reset(); err != nil {
			return res, fmt.Errorf("%w: reset version label: %w", ErrRollbackFailed, err)
		}
		res.Version = backup.UnknownVersion
	}

	restored, err := c.restorer.RestoreDatabases(ctx, b)
	res.Databases = restored
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}

	steps.RunNonCritical(ctx, "permissions", func(ctx context.Context) error {
		return c.cfg.Perms.Apply(ctx, c.runner, c.cfg.AppDir)
	})

	if err := c.svc.Start(ctx); err != nil {
		return res, fmt.Errorf("%w: start service: %w", ErrRollbackFailed, err)
	}

	outcome, err := c.gate.Check(ctx, c.cfg.Endpoint)
	res.Health = outcome
	if err != nil {
		return res, fmt.Errorf("%w: restored service unhealthy: %w", ErrRollbackFailed, err)
	}

	log.Info().
		Str("version", res.Version).
		Strs("databases", res.Databases).
		Int("health_attempts", outcome.Attempts).
		Msg("Rollback completed")
	return res, nil
}
