// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package release

import (
	"context"
	"sync"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/health"
	"github.com/tomtom215/releasekeeper/internal/journal"
	"github.com/tomtom215/releasekeeper/internal/rollback"
	"github.com/tomtom215/releasekeeper/internal/steps"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// calls records collaborator invocations in order across all fakes.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, name)
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type fakeBackups struct {
	calls     *calls
	backup    *backup.Backup
	err       error
	pruneErr  error
	retention int
}

func (f *fakeBackups) CreateBackup(ctx context.Context, current *version.Version) (*backup.Backup, error) {
	f.calls.add("backup")
	return f.backup, f.err
}

func (f *fakeBackups) PruneOldBackups(retention int) (int, error) {
	f.calls.add("prune")
	f.retention = retention
	return 2, f.pruneErr
}

type fakeFetcher struct {
	calls    *calls
	location string
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context, target version.Version) (string, error) {
	f.calls.add("fetch")
	return f.location, f.err
}

type fakeBuilder struct {
	calls *calls
	err   error
}

func (f *fakeBuilder) Build(ctx context.Context, dir string) error {
	f.calls.add("build")
	return f.err
}

type fakeMigrator struct {
	calls *calls
	err   error
}

func (f *fakeMigrator) Migrate(ctx context.Context, dir string, target version.Version) error {
	f.calls.add("migrate")
	return f.err
}

type fakeDeployer struct {
	calls *calls
	store version.Store
	err   error
}

func (f *fakeDeployer) Deploy(ctx context.Context, location string, target version.Version) error {
	f.calls.add("deploy")
	if f.err != nil {
		return f.err
	}
	return f.store.SetCurrent(target)
}

func (f *fakeDeployer) CleanupStaging(ctx context.Context) steps.Result {
	f.calls.add("cleanup")
	return steps.Result{Name: "cleanup_staging"}
}

type fakeHealth struct {
	calls *calls
	err   error
}

func (f *fakeHealth) Check(ctx context.Context, ep health.Endpoint) (health.Outcome, error) {
	f.calls.add("health")
	if f.err != nil {
		return health.Outcome{Attempts: 3, Status: health.StatusFailed, LastError: f.err}, f.err
	}
	return health.Outcome{Attempts: 1, Status: health.StatusPassed}, nil
}

type fakeRollback struct {
	calls *calls
	store version.Store
	err   error
	got   *backup.Backup
}

func (f *fakeRollback) Rollback(ctx context.Context, b *backup.Backup) (rollback.Result, error) {
	f.calls.add("rollback")
	f.got = b
	if f.err != nil {
		return rollback.Result{Backup: b}, f.err
	}
	v, err := b.RecordedVersion()
	if err == nil {
		_ = f.store.SetCurrent(v)
	}
	return rollback.Result{
		Backup:  b,
		Version: b.Version,
		Health:  health.Outcome{Attempts: 1, Status: health.StatusPassed},
	}, nil
}

type fakeJournal struct {
	records []*journal.RunRecord
}

func (f *fakeJournal) Append(ctx context.Context, rec *journal.RunRecord) error {
	f.records = append(f.records, rec)
	return nil
}
