// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/build"
	"github.com/tomtom215/releasekeeper/internal/config"
	"github.com/tomtom215/releasekeeper/internal/deploy"
	"github.com/tomtom215/releasekeeper/internal/events"
	"github.com/tomtom215/releasekeeper/internal/fetch"
	"github.com/tomtom215/releasekeeper/internal/health"
	"github.com/tomtom215/releasekeeper/internal/journal"
	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/metrics"
	"github.com/tomtom215/releasekeeper/internal/migrate"
	"github.com/tomtom215/releasekeeper/internal/release"
	"github.com/tomtom215/releasekeeper/internal/rollback"
	"github.com/tomtom215/releasekeeper/internal/service"
	"github.com/tomtom215/releasekeeper/internal/shell"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// Load reads the configuration, initializes logging and builds the
// production Env.
func Load(ctx context.Context, path string) (*Env, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	initLogging(cfg.Logging)

	env, err := Build(ctx, cfg)
	if err != nil {
		_ = logging.Close()
		return nil, err
	}
	env.closers = append([]func() error{logging.Close}, env.closers...)
	return env, nil
}

// initLogging falls back to stderr only when the run log cannot be opened.
func initLogging(cfg config.LoggingConfig) {
	logCfg := logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		Caller:    cfg.Caller,
		Timestamp: true,
		Output:    os.Stderr,
		RunLog:    cfg.File,
	}
	err := logging.Init(logCfg)
	if err == nil {
		return
	}

	logCfg.RunLog = ""
	if fallbackErr := logging.Init(logCfg); fallbackErr != nil {
		fmt.Fprintf(os.Stderr, "releasekeeper: logging unavailable: %v\n", fallbackErr)
		return
	}
	logging.Warn().Err(err).Str("run_log", cfg.File).Msg("Run log unavailable, logging to stderr only")
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg *config.Config) (*Env, error) {
	env := &Env{}
	runner := shell.NewRunner()

	deployCfg := deploy.Config{
		Root:       cfg.Deploy.Root,
		AppDirName: cfg.Deploy.AppDir,
		Perms: deploy.Permissions{
			Owner: cfg.Deploy.Owner,
			Group: cfg.Deploy.Group,
			Mode:  cfg.Deploy.Mode,
		},
	}
	store := version.NewFileStore(deployCfg.VersionFile())

	backups, err := backup.NewManager(&backup.Config{
		Dir:       cfg.Backup.Dir,
		Retention: cfg.Backup.Retention,
		SourceDir: deployCfg.AppDir(),
		Operator:  cfg.Backup.Operator,
		Database: backup.DatabaseConfig{
			MySQL:             cfg.Database.MySQL,
			PostgreSQL:        cfg.Database.PostgreSQL,
			Redis:             cfg.Database.Redis,
			MySQLDefaultsFile: cfg.Database.MySQLDefaultsFile,
			PostgresUser:      cfg.Database.PostgresUser,
			RedisDataDir:      cfg.Database.RedisDataDir,
		},
	}, runner)
	if err != nil {
		return nil, fmt.Errorf("backup manager: %w", err)
	}

	fetcher, err := fetch.New(fetch.Config{
		Dir:          cfg.Source.Dir,
		Remote:       cfg.Source.Remote,
		StagingDir:   deployCfg.StagingDir(),
		BranchPrefix: cfg.Source.BranchPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}

	svc, err := service.New(service.Config{
		Manager:      cfg.Service.Manager,
		Unit:         cfg.Service.Unit,
		PIDFile:      cfg.Service.PIDFile,
		StartCommand: cfg.Service.StartCommand,
		WorkDir:      cfg.Service.WorkDir,
		StopGrace:    cfg.Service.StopGrace,
	}, runner)
	if err != nil {
		return nil, fmt.Errorf("service controller: %w", err)
	}

	endpoint := health.Endpoint{URL: cfg.Health.URL, Port: cfg.Health.Port}
	gate := health.New(health.Config{
		MaxAttempts:    cfg.Health.MaxAttempts,
		Interval:       cfg.Health.Interval,
		RequestTimeout: cfg.Health.RequestTimeout,
	})

	deps := release.Deps{
		Store:    store,
		Backups:  backups,
		Fetcher:  fetcher,
		Builder:  build.New(runner),
		Migrator: migrate.New(runner, backups, cfg.Database.URL),
		Deployer: deploy.New(deployCfg, svc, store, runner),
		Health:   gate,
		Rollback: rollback.New(rollback.Config{
			AppDir:   deployCfg.AppDir(),
			Perms:    deployCfg.Perms,
			Endpoint: endpoint,
		}, backups, svc, gate, store, runner),
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(journal.Config{
			Path:       cfg.Journal.Path,
			SyncWrites: true,
			Retention:  cfg.Journal.Retention,
		})
		if err != nil {
			_ = env.Close()
			return nil, fmt.Errorf("run journal: %w", err)
		}
		env.OnClose(j.Close)
		deps.Journal = j
		env.History = j
	}

	if cfg.Events.Enabled {
		deps.Events = connectEvents(ctx, cfg.Events)
		env.OnClose(deps.Events.Close)
	}

	coordinator, err := release.New(release.Config{
		Root:         cfg.Deploy.Root,
		MinFreeBytes: cfg.Deploy.MinFreeBytes,
		Retention:    cfg.Backup.Retention,
		Endpoint:     endpoint,
		Operator:     cfg.Backup.Operator,
	}, deps)
	if err != nil {
		_ = env.Close()
		return nil, err
	}

	if path := cfg.Metrics.Textfile; path != "" {
		env.OnClose(func() error { return metrics.WriteTextfile(path) })
	}

	env.Store = store
	env.Releases = coordinator
	env.Tags = fetcher
	env.Backups = backups
	return env, nil
}

// connectEvents never fails a command: an unreachable server only
// disables publishing.
func connectEvents(ctx context.Context, cfg config.EventsConfig) events.Publisher {
	natsCfg := events.DefaultConfig(cfg.URL)
	natsCfg.SubjectPrefix = cfg.SubjectPrefix
	if host, err := os.Hostname(); err == nil {
		natsCfg.ClientName = "releasekeeper@" + host
	}

	pub, err := events.NewNATSPublisher(natsCfg)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("url", cfg.URL).Msg("Event publishing disabled")
		return events.Nop{}
	}
	return pub
}
