// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/shell"
)

// Starter runs the start command. shell.Runner satisfies it.
type Starter interface {
	Run(ctx context.Context, cmd shell.Command) ([]byte, error)
}

// Process controls a daemon identified by its pid file. The start command
// must detach and write the pid file itself.
type Process struct {
	pidFile      string
	startCommand string
	workDir      string
	grace        time.Duration
	runner       Starter
	pollInterval time.Duration
}

// NewProcess creates a pid file controller.
func NewProcess(pidFile, startCommand, workDir string, grace time.Duration, runner Starter) *Process {
	return &Process{
		pidFile:      pidFile,
		startCommand: startCommand,
		workDir:      workDir,
		grace:        grace,
		runner:       runner,
		pollInterval: 100 * time.Millisecond,
	}
}

// Name implements Controller.
func (p *Process) Name() string { return p.pidFile }

// Stop sends SIGTERM, waits up to the grace period and then sends SIGKILL.
func (p *Process) Stop(ctx context.Context) error {
	log := logging.Ctx(ctx)

	proc, err := p.running(ctx)
	if err != nil || proc == nil {
		return err
	}

	log.Info().Int32("pid", proc.Pid).Msg("Stopping service")
	// Cache the create time so pid reuse is detected once it exits.
	if _, err := proc.CreateTimeWithContext(ctx); err != nil {
		log.Debug().Err(err).Msg("Could not read process create time")
	}
	if err := proc.TerminateWithContext(ctx); err != nil {
		return fmt.Errorf("terminate pid %d: %w", proc.Pid, err)
	}

	if p.waitExit(ctx, proc, p.grace) {
		p.removePIDFile()
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Warn().Int32("pid", proc.Pid).Dur("grace", p.grace).Msg("Service did not stop in time, sending SIGKILL")
	if err := proc.KillWithContext(ctx); err != nil {
		return fmt.Errorf("kill pid %d: %w", proc.Pid, err)
	}
	if !p.waitExit(ctx, proc, killWait) {
		return fmt.Errorf("pid %d still running after SIGKILL", proc.Pid)
	}
	p.removePIDFile()
	return nil
}

// Start runs the start command through the shell.
func (p *Process) Start(ctx context.Context) error {
	cmd := shell.Command{Name: "sh", Args: []string{"-c", p.startCommand}, Dir: p.workDir}
	if _, err := p.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("start command: %w", err)
	}
	return nil
}

// IsActive implements Controller.
func (p *Process) IsActive(ctx context.Context) (bool, error) {
	proc, err := p.running(ctx)
	return proc != nil, err
}

// running returns the live process named by the pid file, or nil when the
// pid file is absent or stale.
func (p *Process) running(ctx context.Context) (*process.Process, error) {
	pid, err := readPID(p.pidFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	exists, err := process.PidExistsWithContext(ctx, pid)
	if err != nil || !exists {
		return nil, err
	}

	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, nil
		}
		return nil, err
	}
	return proc, nil
}

func (p *Process) waitExit(ctx context.Context, proc *process.Process, limit time.Duration) bool {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(limit)
	defer deadline.Stop()

	for {
		if !stillRunning(ctx, proc) {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func stillRunning(ctx context.Context, proc *process.Process) bool {
	running, err := proc.IsRunningWithContext(ctx)
	if err == nil {
		return running
	}
	exists, err := process.PidExistsWithContext(ctx, proc.Pid)
	return err != nil || exists
}

func (p *Process) removePIDFile() {
	if err := os.Remove(p.pidFile); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Str("pid_file", p.pidFile).Msg("Failed to remove pid file")
	}
}

func readPID(path string) (int32, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Configured path
	if err != nil {
		return 0, err
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s: %q", path, strings.TrimSpace(string(data)))
	}
	return int32(pid), nil
}
