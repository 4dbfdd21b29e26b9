// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package service

import (
	"context"
	"sync"
)

// Fake is an in-memory Controller for tests of the components that stop
// and start the service.
type Fake struct {
	mu     sync.Mutex
	active bool
	events []string

	StopErr  error
	StartErr error

	// OnStart runs after a successful start, e.g. to bring up a test
	// health endpoint.
	OnStart func()
	// OnStop runs after a successful stop.
	OnStop func()
}

// NewFake returns a Fake reporting the given initial state.
func NewFake(active bool) *Fake {
	return &Fake{active: active}
}

// Name implements Controller.
func (f *Fake) Name() string { return "fake" }

// Stop implements Controller.
func (f *Fake) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.events = append(f.events, "stop")
	if f.StopErr != nil {
		f.mu.Unlock()
		return f.StopErr
	}
	f.active = false
	hook := f.OnStop
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// Start implements Controller.
func (f *Fake) Start(ctx context.Context) error {
	f.mu.Lock()
	f.events = append(f.events, "start")
	if f.StartErr != nil {
		f.mu.Unlock()
		return f.StartErr
	}
	f.active = true
	hook := f.OnStart
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// IsActive implements Controller.
func (f *Fake) IsActive(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

// Events returns the stop/start calls in order.
func (f *Fake) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}
