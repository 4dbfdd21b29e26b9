// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package release

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/journal"
	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/metrics"
	"github.com/tomtom215/releasekeeper/internal/steps"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// UpdatePlan is what one update run works on.
type UpdatePlan struct {
	RunID    string
	Current  *version.Version // nil when the deployed version is unknown
	Target   version.Version
	Backup   *backup.Backup
	Location string
}

// Update moves the deployment to rawTarget. The returned error is nil only
// when the run succeeded or was a no-op; a run that rolled back reports the
// error that caused the rollback alongside a Report in StateDone.
func (c *Coordinator) Update(ctx context.Context, rawTarget string) (*Report, error) {
	ctx, r := c.startRun(ctx, journal.KindUpdate)
	r.report.Target = rawTarget
	rep := c.update(ctx, r, rawTarget)
	if rep.Succeeded() {
		return rep, nil
	}
	return rep, rep.Err
}

func (c *Coordinator) update(ctx context.Context, r *run, rawTarget string) *Report {
	log := logging.Ctx(ctx)
	plan := &UpdatePlan{RunID: r.report.RunID}

	r.to(ctx, StateCheckingPrereqs)

	target, err := version.Parse(rawTarget)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("%w: %w", ErrPrerequisiteFailed, err))
	}
	plan.Target = target

	current, err := c.deps.Store.Current()
	switch {
	case err == nil:
		plan.Current = &current
		r.report.Current = current.String()
	case errors.Is(err, version.ErrUnknown):
		r.report.Current = backup.UnknownVersion
	default:
		return r.fail(ctx, fmt.Errorf("%w: read current version: %w", ErrPrerequisiteFailed, err))
	}

	if plan.Current != nil && plan.Current.Equal(target) {
		log.Info().Str("version", target.String()).Msg("Target version already deployed")
		r.report.Outcome = OutcomeNoOp
		r.to(ctx, StateDone)
		return r.finish(ctx)
	}

	if err := checkDiskSpace(ctx, c.freeSpace, c.cfg.Root, c.cfg.MinFreeBytes); err != nil {
		return r.fail(ctx, err)
	}
	if err := checkWritable(c.cfg.Root); err != nil {
		return r.fail(ctx, err)
	}

	log.Info().
		Str("current", r.report.Current).
		Str("target", target.String()).
		Msg("Starting update")

	err = r.stage(ctx, StateBackingUp, func(ctx context.Context) error {
		b, err := c.deps.Backups.CreateBackup(ctx, plan.Current)
		plan.Backup = b
		r.report.Backup = b
		return err
	})
	if err != nil {
		return r.fail(ctx, err)
	}
	if !plan.Backup.IsEmpty() {
		metrics.RecordBackup(plan.Backup.SizeBytes)
	}

	err = r.stage(ctx, StateFetching, func(ctx context.Context) error {
		location, err := c.deps.Fetcher.Fetch(ctx, target)
		plan.Location = location
		return err
	})
	if err != nil {
		return r.fail(ctx, err)
	}

	if err := r.stage(ctx, StateBuilding, func(ctx context.Context) error {
		return c.deps.Builder.Build(ctx, plan.Location)
	}); err != nil {
		return r.fail(ctx, err)
	}

	if err := r.stage(ctx, StateMigrating, func(ctx context.Context) error {
		return c.deps.Migrator.Migrate(ctx, plan.Location, target)
	}); err != nil {
		return c.recover(ctx, r, plan, err)
	}

	if err := r.stage(ctx, StateDeploying, func(ctx context.Context) error {
		return c.deps.Deployer.Deploy(ctx, plan.Location, target)
	}); err != nil {
		return c.recover(ctx, r, plan, err)
	}

	if err := r.stage(ctx, StateHealthChecking, func(ctx context.Context) error {
		outcome, err := c.deps.Health.Check(ctx, c.cfg.Endpoint)
		r.report.Health = outcome
		return err
	}); err != nil {
		return c.recover(ctx, r, plan, err)
	}

	r.to(ctx, StateDone)
	r.report.Outcome = OutcomeSucceeded
	metrics.SetDeployedVersion(target.String())

	r.report.Steps = append(r.report.Steps,
		steps.RunNonCritical(ctx, "prune_backups", func(ctx context.Context) error {
			pruned, err := c.deps.Backups.PruneOldBackups(c.cfg.Retention)
			metrics.RecordPruned(pruned)
			return err
		}),
		c.deps.Deployer.CleanupStaging(ctx),
	)
	return r.finish(ctx)
}

// recover rolls back to the run's backup after cause. Without a backup
// there is nothing to restore and the run fails as-is.
func (c *Coordinator) recover(ctx context.Context, r *run, plan *UpdatePlan, cause error) *Report {
	log := logging.Ctx(ctx)
	failedIn := r.state
	r.report.failedIn = failedIn

	if !failedIn.rollsBack() {
		return r.fail(ctx, cause)
	}
	if plan.Backup.IsEmpty() {
		log.Error().Err(cause).Str("state", string(failedIn)).Msg("Update failed and no backup is available to roll back")
		return r.fail(ctx, cause)
	}

	log.Warn().Err(cause).Str("state", string(failedIn)).Msg("Update failed, rolling back")
	r.report.Err = cause

	// A cancelled run still has to put the previous release back.
	rbCtx := context.WithoutCancel(ctx)
	res, rbErr := c.rollback(rbCtx, r, plan.Backup)
	metrics.RecordRollback("auto", rbErr)
	r.report.Rollback = &res
	if rbErr != nil {
		return r.fail(rbCtx, errors.Join(cause, rbErr))
	}

	r.report.Outcome = OutcomeRolledBack
	r.report.Health = res.Health
	r.to(rbCtx, StateDone)
	return r.finish(rbCtx)
}
