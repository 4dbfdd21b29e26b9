// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package rollback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/health"
	"github.com/tomtom215/releasekeeper/internal/service"
	"github.com/tomtom215/releasekeeper/internal/shell"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// stubGate returns a fixed health outcome.
type stubGate struct {
	calls int
	err   error
}

func (g *stubGate) Check(ctx context.Context, ep health.Endpoint) (health.Outcome, error) {
	g.calls++
	if g.err != nil {
		return health.Outcome{Attempts: 12, Status: health.StatusFailed, LastError: g.err}, g.err
	}
	return health.Outcome{Attempts: 1, Status: health.StatusPassed}, nil
}

type rollbackEnv struct {
	appDir  string
	manager *backup.Manager
	svc     *service.Fake
	gate    *stubGate
	store   *version.MemoryStore
	ctrl    *Controller
}

func setupRollbackEnv(t *testing.T) *rollbackEnv {
	t.Helper()

	root := t.TempDir()
	env := &rollbackEnv{
		appDir: filepath.Join(root, "current"),
		svc:    service.NewFake(true),
		gate:   &stubGate{},
		store:  version.NewMemoryStoreWith(version.MustParse("1.1.0")),
	}

	runner := shell.NewFakeRunner()
	m, err := backup.NewManager(&backup.Config{
		Dir:       filepath.Join(root, "backups"),
		Retention: 3,
		SourceDir: env.appDir,
	}, runner)
	if err != nil {
		t.Fatal(err)
	}
	env.manager = m
	env.ctrl = New(Config{AppDir: env.appDir}, m, env.svc, env.gate, env.store, runner)
	return env
}

func (e *rollbackEnv) writeApp(t *testing.T, content string) {
	t.Helper()
	if err := os.MkdirAll(e.appDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.appDir, "index.html"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e *rollbackEnv) readApp(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.appDir, "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func (e *rollbackEnv) backupOf(t *testing.T, content string, v *version.Version) *backup.Backup {
	t.Helper()
	e.writeApp(t, content)
	b, err := e.manager.CreateBackup(context.Background(), v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRollback_RestoresTreeAndVersion(t *testing.T) {
	t.Parallel()

	env := setupRollbackEnv(t)
	v1 := version.MustParse("1.0.0")
	b := env.backupOf(t, "v1", &v1)
	env.writeApp(t, "v2")

	res, err := env.ctrl.Rollback(context.Background(), b)
	if err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}

	if got := env.readApp(t); got != "v1" {
		t.Errorf("app content = %q, want v1", got)
	}
	if got, err := env.store.Current(); err != nil || !got.Equal(v1) {
		t.Errorf("store = %v, %v, want 1.0.0", got, err)
	}
	if !res.Health.Passed() || res.Version != "1.0.0" {
		t.Errorf("result = %+v", res)
	}
	if events := env.svc.Events(); len(events) != 2 || events[0] != "stop" || events[1] != "start" {
		t.Errorf("service events = %v", events)
	}
}

func TestRollback_MissingArtifactTreeChangesNothing(t *testing.T) {
	t.Parallel()

	env := setupRollbackEnv(t)
	v1 := version.MustParse("1.0.0")
	b := env.backupOf(t, "v1", &v1)
	env.writeApp(t, "v2")

	if err := os.RemoveAll(b.AppDir()); err != nil {
		t.Fatal(err)
	}

	_, err := env.ctrl.Rollback(context.Background(), b)
	if !errors.Is(err, ErrRollbackFailed) {
		t.Fatalf("error = %v, want ErrRollbackFailed", err)
	}

	if env.store.Writes != 0 {
		t.Errorf("store writes = %d, want 0", env.store.Writes)
	}
	if got, _ := env.store.Current(); got.String() != "1.1.0" {
		t.Errorf("store = %s, want unchanged 1.1.0", got)
	}
	if got := env.readApp(t); got != "v2" {
		t.Errorf("app content = %q, want untouched v2", got)
	}
	if len(env.svc.Events()) != 0 {
		t.Errorf("service must not be touched, got %v", env.svc.Events())
	}
}

func TestRollback_EmptyBackup(t *testing.T) {
	t.Parallel()

	env := setupRollbackEnv(t)
	_, err := env.ctrl.Rollback(context.Background(), &backup.Backup{Empty: true})
	if !errors.Is(err, ErrRollbackFailed) {
		t.Errorf("error = %v, want ErrRollbackFailed", err)
	}
}

func TestRollback_UnknownVersionResetsStore(t *testing.T) {
	t.Parallel()

	env := setupRollbackEnv(t)
	b := env.backupOf(t, "v1", nil)
	env.writeApp(t, "v2")

	res, err := env.ctrl.Rollback(context.Background(), b)
	if err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}
	if _, err := env.store.Current(); !errors.Is(err, version.ErrUnknown) {
		t.Errorf("store error = %v, want ErrUnknown", err)
	}
	if res.Version != backup.UnknownVersion {
		t.Errorf("result version = %q", res.Version)
	}
}

func TestRollback_UnhealthyAfterRestore(t *testing.T) {
	t.Parallel()

	env := setupRollbackEnv(t)
	v1 := version.MustParse("1.0.0")
	b := env.backupOf(t, "v1", &v1)
	env.writeApp(t, "v2")
	env.gate.err = health.ErrHealthCheckFailed

	res, err := env.ctrl.Rollback(context.Background(), b)
	if !errors.Is(err, ErrRollbackFailed) {
		t.Fatalf("error = %v, want ErrRollbackFailed", err)
	}
	if res.Health.Passed() {
		t.Error("health outcome should be failed")
	}
	if got, _ := env.store.Current(); !got.Equal(v1) {
		t.Errorf("store = %s, want 1.0.0 since artifacts were restored", got)
	}
	if got := env.readApp(t); got != "v1" {
		t.Errorf("app content = %q, want v1", got)
	}
}

func TestRollback_StartFailure(t *testing.T) {
	t.Parallel()

	env := setupRollbackEnv(t)
	v1 := version.MustParse("1.0.0")
	b := env.backupOf(t, "v1", &v1)
	env.svc.StartErr = errors.New("unit failed")

	if _, err := env.ctrl.Rollback(context.Background(), b); !errors.Is(err, ErrRollbackFailed) {
		t.Errorf("error = %v, want ErrRollbackFailed", err)
	}
	if env.gate.calls != 0 {
		t.Error("health gate should not run when the service failed to start")
	}
}
