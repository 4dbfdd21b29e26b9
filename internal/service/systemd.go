// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package service

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/tomtom215/releasekeeper/internal/logging"
)

// DBusAPI is the subset of *dbus.Conn the systemd controller uses.
type DBusAPI interface {
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	KillUnitContext(ctx context.Context, name string, signal int32)
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	Close()
}

// DBusAPIFactory opens a D-Bus connection.
type DBusAPIFactory = func(ctx context.Context) (DBusAPI, error)

// NewDBusAPI connects to the system bus.
func NewDBusAPI(ctx context.Context) (DBusAPI, error) {
	return dbus.NewWithContext(ctx)
}

// Systemd controls a systemd unit.
type Systemd struct {
	unit    string
	grace   time.Duration
	newDBus DBusAPIFactory
}

// NewSystemd creates a controller for unit.
func NewSystemd(unit string, grace time.Duration, newDBus DBusAPIFactory) *Systemd {
	return &Systemd{unit: unit, grace: grace, newDBus: newDBus}
}

// Name implements Controller.
func (s *Systemd) Name() string { return s.unit }

// Stop asks systemd to stop the unit and sends SIGKILL to the unit's
// processes if the stop job has not finished within the grace period.
func (s *Systemd) Stop(ctx context.Context) error {
	conn, err := s.newDBus(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	statusCh := make(chan string, 1)
	if _, err := conn.StopUnitContext(ctx, s.unit, "replace", statusCh); err != nil {
		return fmt.Errorf("stop %s: %w", s.unit, err)
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case status := <-statusCh:
		if status != "done" {
			return fmt.Errorf("stop %s: job finished with %q", s.unit, status)
		}
		return nil
	case <-timer.C:
		logging.Ctx(ctx).Warn().
			Str("unit", s.unit).
			Dur("grace", s.grace).
			Msg("Service did not stop in time, sending SIGKILL")
		conn.KillUnitContext(ctx, s.unit, int32(syscall.SIGKILL))
		return s.waitInactive(ctx, conn)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start implements Controller.
func (s *Systemd) Start(ctx context.Context) error {
	conn, err := s.newDBus(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	statusCh := make(chan string, 1)
	if _, err := conn.StartUnitContext(ctx, s.unit, "replace", statusCh); err != nil {
		return fmt.Errorf("start %s: %w", s.unit, err)
	}

	select {
	case status := <-statusCh:
		if status != "done" {
			return fmt.Errorf("start %s: job finished with %q", s.unit, status)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsActive implements Controller.
func (s *Systemd) IsActive(ctx context.Context) (bool, error) {
	conn, err := s.newDBus(ctx)
	if err != nil {
		return false, fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()
	return s.active(ctx, conn)
}

func (s *Systemd) active(ctx context.Context, conn DBusAPI) (bool, error) {
	units, err := conn.ListUnitsByNamesContext(ctx, []string{s.unit})
	if err != nil {
		return false, fmt.Errorf("query %s: %w", s.unit, err)
	}
	for _, u := range units {
		if u.Name == s.unit {
			return u.ActiveState == "active" || u.ActiveState == "deactivating", nil
		}
	}
	return false, nil
}

// waitInactive polls until the unit leaves the active states.
func (s *Systemd) waitInactive(ctx context.Context, conn DBusAPI) error {
	ticker := time.NewTicker(killPollInterval)
	defer ticker.Stop()

	deadline := time.After(killWait)
	for {
		active, err := s.active(ctx, conn)
		if err != nil {
			return err
		}
		if !active {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("stop %s: still active after SIGKILL", s.unit)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var (
	killPollInterval = 200 * time.Millisecond
	killWait         = 10 * time.Second
)
