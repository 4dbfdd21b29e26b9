// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package shell runs the external commands a release depends on: database
// dump and restore clients, build tools, migration runners and service start
// scripts. Everything that spawns a process goes through a Runner so that the
// release workflow can be exercised in tests with a FakeRunner.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	sh "github.com/codeskyblue/go-sh"
	"github.com/tomtom215/releasekeeper/internal/logging"
)

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra environment variables layered over the process env.
	Env map[string]string

	// Stdin, when set, is streamed to the process.
	Stdin io.Reader

	// Stdout, when set, receives standard output instead of the returned
	// buffer. Used for dump commands that write to a file.
	Stdout io.Writer
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes commands.
type Runner interface {
	// Run executes cmd and returns its combined output. A non-zero exit is
	// reported as an *ExitError.
	Run(ctx context.Context, cmd Command) ([]byte, error)

	// Available reports whether the named executable can be found.
	Available(name string) bool
}

// ExitError is returned when a command runs but exits unsuccessfully.
type ExitError struct {
	Command string
	Output  string
	Err     error
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	if len(out) > 512 {
		out = out[len(out)-512:]
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, out)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ShRunner runs commands with go-sh sessions.
type ShRunner struct {
	// ShowCommands echoes each command line to stderr before it runs.
	ShowCommands bool
}

// NewRunner returns the production runner.
func NewRunner() *ShRunner {
	return &ShRunner{}
}

func goo(f func() error) chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- f()
	}()
	return ch
}

// execute starts the session and waits for it, killing it if ctx ends first.
func execute(ctx context.Context, s *sh.Session) error {
	if err := s.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		s.Kill(syscall.SIGKILL)
		return ctx.Err()
	case err := <-goo(s.Wait):
		return err
	}
}

// Run implements Runner.
func (r *ShRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	args := make([]interface{}, len(cmd.Args))
	for i, a := range cmd.Args {
		args[i] = a
	}

	s := sh.NewSession()
	s.ShowCMD = r.ShowCommands
	for k, v := range cmd.Env {
		s.SetEnv(k, v)
	}
	if cmd.Dir != "" {
		s.SetDir(cmd.Dir)
	}
	if cmd.Stdin != nil {
		s.SetStdin(cmd.Stdin)
	}

	var out bytes.Buffer
	s.Stdout = &out
	s.Stderr = &out
	if cmd.Stdout != nil {
		s.Stdout = cmd.Stdout
	}
	s.Command(cmd.Name, args...)

	logging.Ctx(ctx).Debug().Str("command", cmd.String()).Str("dir", cmd.Dir).Msg("Running command")

	if err := execute(ctx, s); err != nil {
		return out.Bytes(), &ExitError{Command: cmd.String(), Output: out.String(), Err: err}
	}
	return out.Bytes(), nil
}

// Available implements Runner.
func (r *ShRunner) Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Exists is a small helper shared by marker-based detectors.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
