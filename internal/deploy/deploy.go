// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package deploy swaps a staged artifact tree into place.
//
// Directory layout under the deploy root:
//
//	<root>/current               running artifact tree
//	<root>/VERSION               recorded version
//	<root>/.staging/<version>    fetched and built trees
//	<root>/.previous-<ts>        old tree while a swap is in progress
//
// The swap is two renames and is not atomic: a crash between moving the
// old tree aside and moving the new one in leaves no current directory.
// Recovery from that state is a rollback from the release backup.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/releasekeeper/internal/fsutil"
	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/service"
	"github.com/tomtom215/releasekeeper/internal/shell"
	"github.com/tomtom215/releasekeeper/internal/steps"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// ErrDeployFailed is returned when the swap or service restart fails.
var ErrDeployFailed = errors.New("deploy failed")

const (
	// DefaultAppDirName is the running tree under the deploy root.
	DefaultAppDirName = "current"

	// VersionFileName is the version record under the deploy root.
	VersionFileName = "VERSION"

	// StagingDirName holds fetched trees under the deploy root.
	StagingDirName = ".staging"

	previousPrefix = ".previous-"
)

// Config describes the deploy root.
type Config struct {
	Root       string
	AppDirName string
	Perms      Permissions
}

// AppDir returns the running tree path.
func (c Config) AppDir() string {
	name := c.AppDirName
	if name == "" {
		name = DefaultAppDirName
	}
	return filepath.Join(c.Root, name)
}

// VersionFile returns the version record path.
func (c Config) VersionFile() string {
	return filepath.Join(c.Root, VersionFileName)
}

// StagingDir returns the staging root.
func (c Config) StagingDir() string {
	return filepath.Join(c.Root, StagingDirName)
}

// Deployer moves staged trees into place and restarts the service.
type Deployer struct {
	cfg    Config
	svc    service.Controller
	store  version.Store
	runner shell.Runner
	now    func() time.Time
}

// New creates a Deployer.
func New(cfg Config, svc service.Controller, store version.Store, runner shell.Runner) *Deployer {
	return &Deployer{cfg: cfg, svc: svc, store: store, runner: runner, now: time.Now}
}

// Deploy stops the service, swaps location in as the running tree, records
// target, reapplies permissions and starts the service. Permission and old
// tree cleanup failures are logged and ignored.
func (d *Deployer) Deploy(ctx context.Context, location string, target version.Version) error {
	log := logging.Ctx(ctx)
	current := d.cfg.AppDir()

	if !fsutil.IsDir(location) {
		return fmt.Errorf("%w: staged tree %s not found", ErrDeployFailed, location)
	}

	log.Info().Str("service", d.svc.Name()).Msg("Stopping service")
	if err := d.svc.Stop(ctx); err != nil {
		return fmt.Errorf("%w: stop service: %w", ErrDeployFailed, err)
	}

	previous := ""
	if _, err := os.Lstat(current); err == nil {
		previous = d.previousDir()
		if err := os.Rename(current, previous); err != nil {
			return fmt.Errorf("%w: move %s aside: %w", ErrDeployFailed, current, err)
		}
	}

	if err := os.Rename(location, current); err != nil {
		return fmt.Errorf("%w: move %s into place: %w", ErrDeployFailed, location, err)
	}

	if err := d.store.SetCurrent(target); err != nil {
		return fmt.Errorf("%w: record version: %w", ErrDeployFailed, err)
	}

	steps.RunNonCritical(ctx, "permissions", func(ctx context.Context) error {
		return d.cfg.Perms.Apply(ctx, d.runner, current)
	})

	log.Info().Str("service", d.svc.Name()).Str("version", target.String()).Msg("Starting service")
	if err := d.svc.Start(ctx); err != nil {
		return fmt.Errorf("%w: start service: %w", ErrDeployFailed, err)
	}

	if previous != "" {
		steps.RunNonCritical(ctx, "remove_previous", func(ctx context.Context) error {
			return os.RemoveAll(previous)
		})
	}
	return nil
}

// CleanupStaging removes leftover staged trees and interrupted swaps.
func (d *Deployer) CleanupStaging(ctx context.Context) steps.Result {
	return steps.RunNonCritical(ctx, "cleanup_staging", func(ctx context.Context) error {
		var errs []error
		if err := os.RemoveAll(d.cfg.StagingDir()); err != nil {
			errs = append(errs, err)
		}
		leftovers, err := filepath.Glob(filepath.Join(d.cfg.Root, previousPrefix+"*"))
		if err != nil {
			errs = append(errs, err)
		}
		for _, dir := range leftovers {
			if err := os.RemoveAll(dir); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

func (d *Deployer) previousDir() string {
	base := filepath.Join(d.cfg.Root, previousPrefix+d.now().UTC().Format("20060102_150405"))
	path := base
	for i := 2; ; i++ {
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			return path
		}
		path = fmt.Sprintf("%s-%d", base, i)
	}
}
