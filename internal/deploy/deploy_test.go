// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/releasekeeper/internal/service"
	"github.com/tomtom215/releasekeeper/internal/shell"
	"github.com/tomtom215/releasekeeper/internal/version"
)

type deployEnv struct {
	cfg      Config
	svc      *service.Fake
	store    *version.MemoryStore
	runner   *shell.FakeRunner
	deployer *Deployer
	staged   string
}

func setupDeployEnv(t *testing.T) *deployEnv {
	t.Helper()

	root := t.TempDir()
	env := &deployEnv{
		cfg:    Config{Root: root, Perms: Permissions{Owner: "www-data", Group: "www-data", Mode: "u=rwX,g=rX,o="}},
		svc:    service.NewFake(true),
		store:  version.NewMemoryStoreWith(version.MustParse("1.0.0")),
		runner: shell.NewFakeRunner(),
	}
	env.deployer = New(env.cfg, env.svc, env.store, env.runner)

	write(t, filepath.Join(env.cfg.AppDir(), "index.html"), "v1")
	env.staged = filepath.Join(env.cfg.StagingDir(), "1.1.0")
	write(t, filepath.Join(env.staged, "index.html"), "v2")
	return env
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestDeploy_SwapsTreeAndRecordsVersion(t *testing.T) {
	t.Parallel()

	env := setupDeployEnv(t)
	target := version.MustParse("1.1.0")

	if err := env.deployer.Deploy(context.Background(), env.staged, target); err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}

	if got := read(t, filepath.Join(env.cfg.AppDir(), "index.html")); got != "v2" {
		t.Errorf("current content = %q, want v2", got)
	}
	if _, err := os.Stat(env.staged); !os.IsNotExist(err) {
		t.Error("staged tree should have been moved")
	}
	got, err := env.store.Current()
	if err != nil || !got.Equal(target) {
		t.Errorf("store = %v, %v, want %s", got, err, target)
	}
	if events := env.svc.Events(); len(events) != 2 || events[0] != "stop" || events[1] != "start" {
		t.Errorf("service events = %v", events)
	}
	if !env.runner.Called("chown -R www-data:www-data " + env.cfg.AppDir()) {
		t.Errorf("chown not run: %v", env.runner.Calls())
	}
	if !env.runner.Called("chmod -R u=rwX,g=rX,o= " + env.cfg.AppDir()) {
		t.Errorf("chmod not run: %v", env.runner.Calls())
	}

	leftovers, _ := filepath.Glob(filepath.Join(env.cfg.Root, ".previous-*"))
	if len(leftovers) != 0 {
		t.Errorf("previous tree not removed: %v", leftovers)
	}
}

func TestDeploy_PermissionFailureIsNonCritical(t *testing.T) {
	t.Parallel()

	env := setupDeployEnv(t)
	env.runner.Fail("chown")

	if err := env.deployer.Deploy(context.Background(), env.staged, version.MustParse("1.1.0")); err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}
	if active, _ := env.svc.IsActive(context.Background()); !active {
		t.Error("service should be started despite chown failure")
	}
}

func TestDeploy_StopFailureMutatesNothing(t *testing.T) {
	t.Parallel()

	env := setupDeployEnv(t)
	env.svc.StopErr = errors.New("unit busy")

	err := env.deployer.Deploy(context.Background(), env.staged, version.MustParse("1.1.0"))
	if !errors.Is(err, ErrDeployFailed) {
		t.Fatalf("error = %v, want ErrDeployFailed", err)
	}
	if got := read(t, filepath.Join(env.cfg.AppDir(), "index.html")); got != "v1" {
		t.Errorf("current content = %q, want v1", got)
	}
	if env.store.Writes != 0 {
		t.Errorf("store writes = %d, want 0", env.store.Writes)
	}
}

func TestDeploy_StartFailure(t *testing.T) {
	t.Parallel()

	env := setupDeployEnv(t)
	env.svc.StartErr = errors.New("exit code 1")

	err := env.deployer.Deploy(context.Background(), env.staged, version.MustParse("1.1.0"))
	if !errors.Is(err, ErrDeployFailed) {
		t.Fatalf("error = %v, want ErrDeployFailed", err)
	}
}

func TestDeploy_MissingStagedTree(t *testing.T) {
	t.Parallel()

	env := setupDeployEnv(t)
	err := env.deployer.Deploy(context.Background(), filepath.Join(env.cfg.Root, "nope"), version.MustParse("1.1.0"))
	if !errors.Is(err, ErrDeployFailed) {
		t.Fatalf("error = %v, want ErrDeployFailed", err)
	}
	if len(env.svc.Events()) != 0 {
		t.Error("service must not be touched when the staged tree is missing")
	}
}

func TestDeploy_FirstDeployWithoutCurrent(t *testing.T) {
	t.Parallel()

	env := setupDeployEnv(t)
	if err := os.RemoveAll(env.cfg.AppDir()); err != nil {
		t.Fatal(err)
	}

	if err := env.deployer.Deploy(context.Background(), env.staged, version.MustParse("1.1.0")); err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}
	if got := read(t, filepath.Join(env.cfg.AppDir(), "index.html")); got != "v2" {
		t.Errorf("current content = %q", got)
	}
}

func TestCleanupStaging(t *testing.T) {
	t.Parallel()

	env := setupDeployEnv(t)
	write(t, filepath.Join(env.cfg.Root, ".previous-20261019_100000", "index.html"), "old")

	res := env.deployer.CleanupStaging(context.Background())
	if !res.OK() {
		t.Fatalf("CleanupStaging() failed: %v", res.Err)
	}
	if _, err := os.Stat(env.cfg.StagingDir()); !os.IsNotExist(err) {
		t.Error("staging dir should be removed")
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Root, ".previous-20261019_100000")); !os.IsNotExist(err) {
		t.Error("interrupted swap leftovers should be removed")
	}
	if _, err := os.Stat(env.cfg.AppDir()); err != nil {
		t.Error("current tree must survive cleanup")
	}
}

func TestPermissions_OwnerSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		perms Permissions
		want  string
	}{
		{Permissions{Owner: "app", Group: "web"}, "app:web"},
		{Permissions{Owner: "app"}, "app"},
		{Permissions{Group: "web"}, ":web"},
		{Permissions{}, ""},
	}
	for _, tt := range tests {
		if got := tt.perms.ownerSpec(); got != tt.want {
			t.Errorf("ownerSpec(%+v) = %q, want %q", tt.perms, got, tt.want)
		}
	}

	runner := shell.NewFakeRunner()
	if err := (Permissions{}).Apply(context.Background(), runner, "/opt/app/current"); err != nil {
		t.Fatal(err)
	}
	if len(runner.Calls()) != 0 {
		t.Errorf("empty permissions should run nothing, got %v", runner.Calls())
	}
}
