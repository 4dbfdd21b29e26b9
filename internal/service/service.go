// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package service stops and starts the deployed application.
//
// Two controllers are provided: Systemd drives a unit over D-Bus, Process
// manages a daemon through its pid file for hosts without systemd.
package service

import (
	"context"
	"fmt"
	"time"
)

// DefaultStopGrace bounds how long a stop waits before force-killing.
const DefaultStopGrace = 30 * time.Second

// Controller stops and starts the application service.
type Controller interface {
	// Name identifies the service in logs.
	Name() string

	// Stop terminates the service, escalating to a forced kill after the
	// grace period. Stopping a service that is not running succeeds.
	Stop(ctx context.Context) error

	Start(ctx context.Context) error

	IsActive(ctx context.Context) (bool, error)
}

// Config selects and configures a controller.
type Config struct {
	// Manager is "systemd" or "process".
	Manager string

	Unit         string
	PIDFile      string
	StartCommand string
	WorkDir      string
	StopGrace    time.Duration
}

// New returns the controller selected by cfg.Manager.
func New(cfg Config, runner Starter) (Controller, error) {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}

	switch cfg.Manager {
	case "", "systemd":
		if cfg.Unit == "" {
			return nil, fmt.Errorf("systemd unit name is required")
		}
		return NewSystemd(cfg.Unit, cfg.StopGrace, NewDBusAPI), nil
	case "process":
		if cfg.PIDFile == "" || cfg.StartCommand == "" {
			return nil, fmt.Errorf("pid file and start command are required for the process manager")
		}
		return NewProcess(cfg.PIDFile, cfg.StartCommand, cfg.WorkDir, cfg.StopGrace, runner), nil
	default:
		return nil, fmt.Errorf("unknown service manager %q", cfg.Manager)
	}
}
