// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package release

import (
	"context"
	"time"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/journal"
	"github.com/tomtom215/releasekeeper/internal/metrics"
	"github.com/tomtom215/releasekeeper/internal/rollback"
)

func (c *Coordinator) rollback(ctx context.Context, r *run, b *backup.Backup) (rollback.Result, error) {
	r.to(ctx, StateRollingBack)
	start := time.Now()
	res, err := c.deps.Rollback.Rollback(ctx, b)
	metrics.RecordStage(string(StateRollingBack), time.Since(start), err)
	return res, err
}

// Rollback restores b on operator request. It runs as its own journaled
// run of kind rollback.
func (c *Coordinator) Rollback(ctx context.Context, b *backup.Backup) (*Report, error) {
	ctx, r := c.startRun(ctx, journal.KindRollback)
	r.report.Backup = b
	if !b.IsEmpty() {
		r.report.Target = b.Version
	}
	if current, err := c.deps.Store.Current(); err == nil {
		r.report.Current = current.String()
	} else {
		r.report.Current = backup.UnknownVersion
	}

	res, err := c.rollback(ctx, r, b)
	metrics.RecordRollback("manual", err)
	r.report.Rollback = &res
	r.report.Health = res.Health
	if err != nil {
		return r.fail(ctx, err), err
	}

	r.to(ctx, StateDone)
	r.report.Outcome = OutcomeSucceeded
	if res.Version != "" && res.Version != backup.UnknownVersion {
		metrics.SetDeployedVersion(res.Version)
	}
	return r.finish(ctx), nil
}
