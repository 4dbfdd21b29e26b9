// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package release

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/build"
	"github.com/tomtom215/releasekeeper/internal/deploy"
	"github.com/tomtom215/releasekeeper/internal/events"
	"github.com/tomtom215/releasekeeper/internal/health"
	"github.com/tomtom215/releasekeeper/internal/journal"
	"github.com/tomtom215/releasekeeper/internal/migrate"
	"github.com/tomtom215/releasekeeper/internal/rollback"
	"github.com/tomtom215/releasekeeper/internal/version"
)

type harness struct {
	calls    *calls
	store    *version.MemoryStore
	backups  *fakeBackups
	fetcher  *fakeFetcher
	builder  *fakeBuilder
	migrator *fakeMigrator
	deployer *fakeDeployer
	health   *fakeHealth
	rollback *fakeRollback
	journal  *fakeJournal
	events   *events.Memory
	free     uint64
}

func newHarness(t *testing.T, current string) *harness {
	t.Helper()
	c := &calls{}
	store := version.NewMemoryStore()
	if current != "" {
		store = version.NewMemoryStoreWith(version.MustParse(current))
	}
	return &harness{
		calls: c,
		store: store,
		backups: &fakeBackups{calls: c, backup: &backup.Backup{
			ID:      "b1",
			Path:    "/var/backups/app/backup_20261019_100000_" + current,
			Version: current,
		}},
		fetcher:  &fakeFetcher{calls: c, location: "/opt/app/.staging/next"},
		builder:  &fakeBuilder{calls: c},
		migrator: &fakeMigrator{calls: c},
		deployer: &fakeDeployer{calls: c, store: store},
		health:   &fakeHealth{calls: c},
		rollback: &fakeRollback{calls: c, store: store},
		journal:  &fakeJournal{},
		events:   &events.Memory{},
		free:     10 << 30,
	}
}

func (h *harness) coordinator(t *testing.T) *Coordinator {
	t.Helper()
	c, err := New(Config{Root: t.TempDir(), Retention: 5, Operator: "deploy"}, Deps{
		Store:    h.store,
		Backups:  h.backups,
		Fetcher:  h.fetcher,
		Builder:  h.builder,
		Migrator: h.migrator,
		Deployer: h.deployer,
		Health:   h.health,
		Rollback: h.rollback,
		Journal:  h.journal,
		Events:   h.events,
	}, WithFreeSpace(func(ctx context.Context, path string) (uint64, error) {
		return h.free, nil
	}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Error("expected error without deploy root")
	}
	if _, err := New(Config{Root: "/opt/app"}, Deps{}); err == nil {
		t.Error("expected error without collaborators")
	}
}

func TestUpdate_Success(t *testing.T) {
	h := newHarness(t, "1.2.0")
	c := h.coordinator(t)

	rep, err := c.Update(context.Background(), "1.3.0")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if rep.FinalState != StateDone || rep.Outcome != OutcomeSucceeded {
		t.Errorf("final = %s/%s, want Done/succeeded", rep.FinalState, rep.Outcome)
	}
	wantCalls := []string{"backup", "fetch", "build", "migrate", "deploy", "health", "prune", "cleanup"}
	if got := h.calls.list(); !reflect.DeepEqual(got, wantCalls) {
		t.Errorf("calls = %v, want %v", got, wantCalls)
	}
	wantStates := []string{"CheckingPrereqs", "BackingUp", "Fetching", "Building", "Migrating", "Deploying", "HealthChecking", "Done"}
	if got := h.events.Transitions(); !reflect.DeepEqual(got, wantStates) {
		t.Errorf("transitions = %v, want %v", got, wantStates)
	}
	if h.backups.retention != 5 {
		t.Errorf("pruned with retention %d, want 5", h.backups.retention)
	}
	if v, _ := h.store.Current(); v.String() != "1.3.0" {
		t.Errorf("store = %s, want 1.3.0", v)
	}
	if len(h.journal.records) != 1 {
		t.Fatalf("journal records = %d, want 1", len(h.journal.records))
	}
	rec := h.journal.records[0]
	if rec.Kind != journal.KindUpdate || rec.From != "1.2.0" || rec.To != "1.3.0" || rec.Outcome != "succeeded" {
		t.Errorf("journal record = %+v", rec)
	}
	if rec.BackupPath == "" || rec.Operator != "deploy" {
		t.Errorf("journal record missing backup or operator: %+v", rec)
	}
}

func TestUpdate_SameVersionIsNoOp(t *testing.T) {
	h := newHarness(t, "1.2.3")
	c := h.coordinator(t)

	rep, err := c.Update(context.Background(), "1.2.3")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if rep.FinalState != StateDone || rep.Outcome != OutcomeNoOp {
		t.Errorf("final = %s/%s, want Done/no_op", rep.FinalState, rep.Outcome)
	}
	if got := h.calls.list(); len(got) != 0 {
		t.Errorf("mutating calls = %v, want none", got)
	}
	if h.store.Writes != 0 {
		t.Errorf("store writes = %d, want 0", h.store.Writes)
	}
	if got := h.events.Transitions(); !reflect.DeepEqual(got, []string{"CheckingPrereqs", "Done"}) {
		t.Errorf("transitions = %v", got)
	}
}

func TestUpdate_PrerequisiteFailures(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		free    uint64
		wantErr error
	}{
		{"missing version", "", 10 << 30, version.ErrInvalidFormat},
		{"two components", "1.2", 10 << 30, version.ErrInvalidFormat},
		{"wildcard", "1.2.x", 10 << 30, version.ErrInvalidFormat},
		{"leading v", "v1.3.0", 10 << 30, version.ErrInvalidFormat},
		{"low disk", "1.3.0", 512 << 20, ErrPrerequisiteFailed},
		{"exactly at floor", "1.3.0", DefaultMinFreeBytes, ErrPrerequisiteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "1.2.0")
			h.free = tt.free
			c := h.coordinator(t)

			rep, err := c.Update(context.Background(), tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrPrerequisiteFailed) {
				t.Errorf("error = %v, want ErrPrerequisiteFailed", err)
			}
			if rep.FinalState != StateFailed {
				t.Errorf("final state = %s, want Failed", rep.FinalState)
			}
			if got := h.calls.list(); len(got) != 0 {
				t.Errorf("calls = %v, want none", got)
			}
			if h.store.Writes != 0 {
				t.Errorf("store writes = %d, want 0", h.store.Writes)
			}
		})
	}
}

func TestUpdate_UnknownCurrentVersion(t *testing.T) {
	h := newHarness(t, "")
	c := h.coordinator(t)

	rep, err := c.Update(context.Background(), "1.0.0")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if rep.Current != backup.UnknownVersion {
		t.Errorf("Current = %q, want %q", rep.Current, backup.UnknownVersion)
	}
	if v, _ := h.store.Current(); v.String() != "1.0.0" {
		t.Errorf("store = %s, want 1.0.0", v)
	}
}

func TestUpdate_EarlyFailuresDoNotRollBack(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		setup     func(h *harness)
		wantErr   error
		wantCalls []string
	}{
		{
			name:      "backup",
			setup:     func(h *harness) { h.backups.err = backup.ErrBackupFailed },
			wantErr:   backup.ErrBackupFailed,
			wantCalls: []string{"backup"},
		},
		{
			name:      "fetch",
			setup:     func(h *harness) { h.fetcher.err = boom },
			wantErr:   boom,
			wantCalls: []string{"backup", "fetch"},
		},
		{
			name:      "build",
			setup:     func(h *harness) { h.builder.err = build.ErrBuildFailed },
			wantErr:   build.ErrBuildFailed,
			wantCalls: []string{"backup", "fetch", "build"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "1.2.0")
			tt.setup(h)
			c := h.coordinator(t)

			rep, err := c.Update(context.Background(), "1.3.0")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if rep.FinalState != StateFailed || rep.Outcome != OutcomeFailed {
				t.Errorf("final = %s/%s, want Failed/failed", rep.FinalState, rep.Outcome)
			}
			if got := h.calls.list(); !reflect.DeepEqual(got, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
			if v, _ := h.store.Current(); v.String() != "1.2.0" {
				t.Errorf("store = %s, want 1.2.0", v)
			}
		})
	}
}

func TestUpdate_LateFailuresRollBack(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *harness)
		wantErr    error
		failedIn   string
		wantStates []string
	}{
		{
			name:       "migrate",
			setup:      func(h *harness) { h.migrator.err = migrate.ErrMigrationFailed },
			wantErr:    migrate.ErrMigrationFailed,
			failedIn:   "Migrating",
			wantStates: []string{"CheckingPrereqs", "BackingUp", "Fetching", "Building", "Migrating", "RollingBack", "Done"},
		},
		{
			name:       "deploy",
			setup:      func(h *harness) { h.deployer.err = deploy.ErrDeployFailed },
			wantErr:    deploy.ErrDeployFailed,
			failedIn:   "Deploying",
			wantStates: []string{"CheckingPrereqs", "BackingUp", "Fetching", "Building", "Migrating", "Deploying", "RollingBack", "Done"},
		},
		{
			name:       "health",
			setup:      func(h *harness) { h.health.err = health.ErrHealthCheckFailed },
			wantErr:    health.ErrHealthCheckFailed,
			failedIn:   "HealthChecking",
			wantStates: []string{"CheckingPrereqs", "BackingUp", "Fetching", "Building", "Migrating", "Deploying", "HealthChecking", "RollingBack", "Done"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "1.2.0")
			tt.setup(h)
			c := h.coordinator(t)

			rep, err := c.Update(context.Background(), "1.3.0")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if rep.FinalState != StateDone || rep.Outcome != OutcomeRolledBack {
				t.Errorf("final = %s/%s, want Done/rolled_back", rep.FinalState, rep.Outcome)
			}
			if rep.Succeeded() {
				t.Error("rolled back run must not report success")
			}
			if string(rep.failedIn) != tt.failedIn {
				t.Errorf("failedIn = %s, want %s", rep.failedIn, tt.failedIn)
			}
			if got := h.events.Transitions(); !reflect.DeepEqual(got, tt.wantStates) {
				t.Errorf("transitions = %v, want %v", got, tt.wantStates)
			}
			if h.rollback.got != h.backups.backup {
				t.Error("rollback did not receive the run's backup")
			}
			if v, _ := h.store.Current(); v.String() != "1.2.0" {
				t.Errorf("store = %s, want 1.2.0", v)
			}
			if h.calls.list()[len(h.calls.list())-1] != "rollback" {
				t.Errorf("calls = %v, want rollback last and no prune", h.calls.list())
			}
			if rec := h.journal.records[0]; rec.Outcome != "rolled_back" || rec.FinalState != "Done" {
				t.Errorf("journal record = %+v", rec)
			}
		})
	}
}

func TestUpdate_NoBackupMeansNoRollback(t *testing.T) {
	h := newHarness(t, "1.2.0")
	h.backups.backup = &backup.Backup{Empty: true}
	h.deployer.err = deploy.ErrDeployFailed
	c := h.coordinator(t)

	rep, err := c.Update(context.Background(), "1.3.0")
	if !errors.Is(err, deploy.ErrDeployFailed) {
		t.Fatalf("error = %v, want ErrDeployFailed", err)
	}
	if rep.FinalState != StateFailed {
		t.Errorf("final state = %s, want Failed", rep.FinalState)
	}
	for _, call := range h.calls.list() {
		if call == "rollback" {
			t.Error("rollback attempted without a backup")
		}
	}
}

func TestUpdate_RollbackFailureIsTerminal(t *testing.T) {
	h := newHarness(t, "1.2.0")
	h.health.err = health.ErrHealthCheckFailed
	h.rollback.err = rollback.ErrRollbackFailed
	c := h.coordinator(t)

	rep, err := c.Update(context.Background(), "1.3.0")
	if !errors.Is(err, rollback.ErrRollbackFailed) || !errors.Is(err, health.ErrHealthCheckFailed) {
		t.Fatalf("error = %v, want both health and rollback failures", err)
	}
	if rep.FinalState != StateFailed || rep.Outcome != OutcomeFailed {
		t.Errorf("final = %s/%s, want Failed/failed", rep.FinalState, rep.Outcome)
	}
	if rep.failedIn != StateHealthChecking {
		t.Errorf("failedIn = %s, want HealthChecking", rep.failedIn)
	}
}

func TestUpdate_RollbackSurvivesCancellation(t *testing.T) {
	h := newHarness(t, "1.2.0")
	ctx, cancel := context.WithCancel(context.Background())
	h.health.err = context.Canceled
	c := h.coordinator(t)

	var seen error
	orig := h.rollback
	c.deps.Rollback = rollbackFunc(func(rctx context.Context, b *backup.Backup) (rollback.Result, error) {
		seen = rctx.Err()
		return orig.Rollback(rctx, b)
	})
	cancel()

	rep, _ := c.Update(ctx, "1.3.0")
	if seen != nil {
		t.Errorf("rollback context error = %v, want nil", seen)
	}
	if rep.Outcome != OutcomeRolledBack {
		t.Errorf("outcome = %s, want rolled_back", rep.Outcome)
	}
}

type rollbackFunc func(ctx context.Context, b *backup.Backup) (rollback.Result, error)

func (f rollbackFunc) Rollback(ctx context.Context, b *backup.Backup) (rollback.Result, error) {
	return f(ctx, b)
}

func TestRollback_Manual(t *testing.T) {
	h := newHarness(t, "1.3.0")
	c := h.coordinator(t)
	b := &backup.Backup{ID: "b0", Path: "/var/backups/app/backup_x_1.2.0", Version: "1.2.0"}

	rep, err := c.Rollback(context.Background(), b)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if rep.Kind != journal.KindRollback || rep.Outcome != OutcomeSucceeded || rep.FinalState != StateDone {
		t.Errorf("report = %+v", rep)
	}
	if rep.Current != "1.3.0" || rep.Target != "1.2.0" {
		t.Errorf("current/target = %s/%s", rep.Current, rep.Target)
	}
	if got := h.events.Transitions(); !reflect.DeepEqual(got, []string{"RollingBack", "Done"}) {
		t.Errorf("transitions = %v", got)
	}
	if v, _ := h.store.Current(); v.String() != "1.2.0" {
		t.Errorf("store = %s, want 1.2.0", v)
	}
	if rec := h.journal.records[0]; rec.Kind != journal.KindRollback || rec.BackupPath != b.Path {
		t.Errorf("journal record = %+v", rec)
	}
}

func TestRollback_ManualFailure(t *testing.T) {
	h := newHarness(t, "1.3.0")
	h.rollback.err = rollback.ErrRollbackFailed
	c := h.coordinator(t)

	rep, err := c.Rollback(context.Background(), &backup.Backup{Path: "/x", Version: "1.2.0"})
	if !errors.Is(err, rollback.ErrRollbackFailed) {
		t.Fatalf("error = %v, want ErrRollbackFailed", err)
	}
	if rep.FinalState != StateFailed {
		t.Errorf("final state = %s, want Failed", rep.FinalState)
	}
}

func TestUpdate_EventFailuresAreIgnored(t *testing.T) {
	h := newHarness(t, "1.2.0")
	h.events.Err = errors.New("nats down")
	c := h.coordinator(t)

	if _, err := c.Update(context.Background(), "1.3.0"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

func TestReport_Summary(t *testing.T) {
	tests := []struct {
		name string
		rep  Report
		want string
	}{
		{"no-op", Report{Outcome: OutcomeNoOp, Target: "1.2.3"}, "already at version 1.2.3, nothing to do"},
		{"updated", Report{Kind: journal.KindUpdate, Outcome: OutcomeSucceeded, Current: "1.2.0", Target: "1.3.0"}, "updated 1.2.0 -> 1.3.0"},
		{"manual rollback", Report{Kind: journal.KindRollback, Outcome: OutcomeSucceeded, Target: "1.2.0"}, "rolled back to version 1.2.0"},
		{
			"rolled back",
			Report{Outcome: OutcomeRolledBack, Current: "1.2.0", Target: "1.3.0", Err: errors.New("boom")},
			"update to 1.3.0 failed and was rolled back to 1.2.0: boom",
		},
		{
			"failed",
			Report{Kind: journal.KindUpdate, Outcome: OutcomeFailed, FinalState: StateFailed, failedIn: StateBuilding, Err: errors.New("boom")},
			"update failed in Building: boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rep.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateCheckingPrereqs, true},
		{StateCheckingPrereqs, StateDone, true},
		{StateBuilding, StateRollingBack, false},
		{StateMigrating, StateRollingBack, true},
		{StateHealthChecking, StateRollingBack, true},
		{StateRollingBack, StateDone, true},
		{StateDone, StateIdle, false},
		{StateFetching, StateMigrating, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStateClassification(t *testing.T) {
	for _, s := range []State{StateIdle, StateCheckingPrereqs, StateBackingUp, StateFetching, StateBuilding,
		StateMigrating, StateDeploying, StateHealthChecking, StateRollingBack, StateDone, StateFailed} {
		wantTerminal := s == StateDone || s == StateFailed
		if s.Terminal() != wantTerminal {
			t.Errorf("%s.Terminal() = %v", s, s.Terminal())
		}

		// Only states after the tree may have changed trigger a rollback,
		// and every one of them must be allowed to reach RollingBack.
		if s.rollsBack() != CanTransition(s, StateRollingBack) && s != StateIdle {
			t.Errorf("%s.rollsBack() = %v disagrees with the transition table", s, s.rollsBack())
		}
	}
}
