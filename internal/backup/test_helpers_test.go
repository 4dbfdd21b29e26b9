// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/releasekeeper/internal/shell"
)

// testEnv holds a deployed artifact tree, a backups root and a fake runner.
type testEnv struct {
	t       *testing.T
	root    string
	appDir  string
	cfg     *Config
	runner  *shell.FakeRunner
	manager *Manager
	clock   time.Time
}

func setupTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	root := t.TempDir()
	env := &testEnv{
		t:      t,
		root:   root,
		appDir: filepath.Join(root, "deploy", "current"),
		runner: shell.NewFakeRunner(),
		clock:  time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
	}
	env.cfg = &Config{
		Dir:       filepath.Join(root, "backups"),
		Retention: 5,
		SourceDir: env.appDir,
		Operator:  "deploy",
		Database:  DefaultDatabaseConfig(),
	}
	env.cfg.Database.RedisDataDir = filepath.Join(root, "redis")

	opts = append([]Option{WithClock(env.tick)}, opts...)
	m, err := NewManager(env.cfg, env.runner, opts...)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	env.manager = m
	return env
}

// tick advances the clock a minute per call so backups order predictably.
func (e *testEnv) tick() time.Time {
	e.clock = e.clock.Add(time.Minute)
	return e.clock
}

func (e *testEnv) writeApp(files map[string]string) {
	e.t.Helper()
	for name, content := range files {
		path := filepath.Join(e.appDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			e.t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			e.t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
