// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package shell

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// FakeRunner is a test helper that records commands instead of running them.
//
// Responses are matched by prefix against the rendered command line; the
// longest matching prefix wins. Unmatched commands succeed with no output.
type FakeRunner struct {
	mu        sync.Mutex
	calls     []Command
	responses map[string]FakeResponse
	binaries  map[string]bool
}

// FakeResponse is the canned result of a matched command.
type FakeResponse struct {
	Output string
	Err    error

	// Hook runs before the response is returned. It can create files the
	// real command would have produced.
	Hook func(cmd Command) error
}

// NewFakeRunner creates a FakeRunner with no binaries available.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: make(map[string]FakeResponse),
		binaries:  make(map[string]bool),
	}
}

// On registers a response for commands whose line starts with prefix.
func (f *FakeRunner) On(prefix string, resp FakeResponse) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = resp
	return f
}

// Fail makes commands starting with prefix exit with an error.
func (f *FakeRunner) Fail(prefix string) *FakeRunner {
	return f.On(prefix, FakeResponse{Err: errors.New("exit status 1")})
}

// Provide marks executables as present for Available.
func (f *FakeRunner) Provide(names ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.binaries[n] = true
	}
	return f
}

// Calls returns the rendered command lines seen so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// Called reports whether any command line started with prefix.
func (f *FakeRunner) Called(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	line := cmd.String()
	var (
		resp    FakeResponse
		matched int = -1
	)
	for prefix, r := range f.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > matched {
			resp, matched = r, len(prefix)
		}
	}
	f.mu.Unlock()

	if resp.Hook != nil {
		if err := resp.Hook(cmd); err != nil {
			return nil, err
		}
	}
	if cmd.Stdout != nil && resp.Output != "" {
		if _, err := cmd.Stdout.Write([]byte(resp.Output)); err != nil {
			return nil, err
		}
	}
	if resp.Err != nil {
		return []byte(resp.Output), &ExitError{Command: line, Output: resp.Output, Err: resp.Err}
	}
	return []byte(resp.Output), nil
}

// Available implements Runner.
func (f *FakeRunner) Available(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.binaries[name]
}
