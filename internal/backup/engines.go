// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomtom215/releasekeeper/internal/fsutil"
	"github.com/tomtom215/releasekeeper/internal/shell"
)

// Engine describes how one database kind is detected, dumped and restored.
type Engine struct {
	// Name is used in the dump file name: database_<Name><Ext>
	Name string
	Ext  string

	Detect  func(ctx context.Context, r shell.Runner) bool
	Dump    func(ctx context.Context, r shell.Runner, dest string) error
	Restore func(ctx context.Context, r shell.Runner, src string) error
}

// DumpFile returns the dump file name for the engine.
func (e Engine) DumpFile() string {
	return "database_" + e.Name + e.Ext
}

// DefaultEngines returns the enabled engines in dump order: primary SQL
// store, secondary SQL store, key-value cache.
func DefaultEngines(cfg DatabaseConfig) []Engine {
	var engines []Engine
	if cfg.MySQL {
		engines = append(engines, mysqlEngine(cfg))
	}
	if cfg.PostgreSQL {
		engines = append(engines, postgresEngine(cfg))
	}
	if cfg.Redis {
		engines = append(engines, redisEngine(cfg))
	}
	return engines
}

var (
	mysqlUnits    = []string{"mysql", "mariadb", "mysqld"}
	postgresUnits = []string{"postgresql"}
	redisUnits    = []string{"redis-server", "redis"}
)

func mysqlEngine(cfg DatabaseConfig) Engine {
	var auth []string
	if cfg.MySQLDefaultsFile != "" {
		auth = []string{"--defaults-extra-file=" + cfg.MySQLDefaultsFile}
	}

	return Engine{
		Name: "mysql",
		Ext:  ".sql",
		Detect: func(ctx context.Context, r shell.Runner) bool {
			return r.Available("mysqldump") && activeUnit(ctx, r, mysqlUnits) != ""
		},
		Dump: func(ctx context.Context, r shell.Runner, dest string) error {
			args := append(append([]string{}, auth...),
				"--all-databases", "--single-transaction", "--routines", "--triggers")
			return dumpToFile(ctx, r, shell.Command{Name: "mysqldump", Args: args}, dest)
		},
		Restore: func(ctx context.Context, r shell.Runner, src string) error {
			return restoreFromFile(ctx, r, shell.Command{Name: "mysql", Args: auth}, src)
		},
	}
}

func postgresEngine(cfg DatabaseConfig) Engine {
	return Engine{
		Name: "postgresql",
		Ext:  ".sql",
		Detect: func(ctx context.Context, r shell.Runner) bool {
			return r.Available("pg_dumpall") && activeUnit(ctx, r, postgresUnits) != ""
		},
		Dump: func(ctx context.Context, r shell.Runner, dest string) error {
			cmd := shell.Command{Name: "pg_dumpall", Args: []string{"-U", cfg.PostgresUser, "--clean", "--if-exists"}}
			return dumpToFile(ctx, r, cmd, dest)
		},
		Restore: func(ctx context.Context, r shell.Runner, src string) error {
			_, err := r.Run(ctx, shell.Command{
				Name: "psql",
				Args: []string{"-U", cfg.PostgresUser, "-d", "postgres", "-q", "-f", src},
			})
			return err
		},
	}
}

// Redis has no load-from-file command, so a restore swaps dump.rdb while
// the server is stopped.
func redisEngine(cfg DatabaseConfig) Engine {
	return Engine{
		Name: "redis",
		Ext:  ".rdb",
		Detect: func(ctx context.Context, r shell.Runner) bool {
			return r.Available("redis-cli") && activeUnit(ctx, r, redisUnits) != ""
		},
		Dump: func(ctx context.Context, r shell.Runner, dest string) error {
			_, err := r.Run(ctx, shell.Command{Name: "redis-cli", Args: []string{"--rdb", dest}})
			return err
		},
		Restore: func(ctx context.Context, r shell.Runner, src string) error {
			unit := activeUnit(ctx, r, redisUnits)
			if unit == "" {
				unit = redisUnits[0]
			}
			if _, err := r.Run(ctx, shell.Command{Name: "systemctl", Args: []string{"stop", unit}}); err != nil {
				return err
			}
			if err := fsutil.CopyFile(src, filepath.Join(cfg.RedisDataDir, "dump.rdb"), 0o660); err != nil {
				return err
			}
			_, err := r.Run(ctx, shell.Command{Name: "systemctl", Args: []string{"start", unit}})
			return err
		},
	}
}

// activeUnit returns the first unit systemd reports active, or "".
func activeUnit(ctx context.Context, r shell.Runner, units []string) string {
	if !r.Available("systemctl") {
		return ""
	}
	for _, unit := range units {
		if _, err := r.Run(ctx, shell.Command{Name: "systemctl", Args: []string{"is-active", "--quiet", unit}}); err == nil {
			return unit
		}
	}
	return ""
}

func dumpToFile(ctx context.Context, r shell.Runner, cmd shell.Command, dest string) error {
	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	cmd.Stdout = file

	if _, err := r.Run(ctx, cmd); err != nil {
		file.Close()    //nolint:errcheck,gosec // Already returning an error
		os.Remove(dest) //nolint:errcheck,gosec // Partial dump is useless
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close dump %s: %w", dest, err)
	}
	return nil
}

func restoreFromFile(ctx context.Context, r shell.Runner, cmd shell.Command, src string) error {
	file, err := os.Open(src) //nolint:gosec // Path comes from a backup directory listing
	if err != nil {
		return err
	}
	defer file.Close() //nolint:errcheck // Read-only

	cmd.Stdin = file
	_, err = r.Run(ctx, cmd)
	return err
}
