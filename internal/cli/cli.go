// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/journal"
	"github.com/tomtom215/releasekeeper/internal/release"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// Result is the outcome of one command.
type Result struct {
	Code    int
	Message string
}

func ok(format string, args ...any) Result {
	return Result{Code: ExitOK, Message: fmt.Sprintf(format, args...)}
}

func failure(format string, args ...any) Result {
	return Result{Code: ExitFailure, Message: fmt.Sprintf(format, args...)}
}

// Handler runs one command.
type Handler func(ctx context.Context, env *Env, args []string) Result

// Releaser runs update and rollback workflows.
type Releaser interface {
	Update(ctx context.Context, rawTarget string) (*release.Report, error)
	Rollback(ctx context.Context, b *backup.Backup) (*release.Report, error)
}

// TagSource lists the versions available in the source repository.
type TagSource interface {
	ListTags(ctx context.Context) ([]string, error)
	Latest(ctx context.Context) (version.Version, error)
}

// BackupCatalog reads existing backups.
type BackupCatalog interface {
	List() ([]*backup.Backup, error)
	Load(dir string) (*backup.Backup, error)
}

// History reads recent run records.
type History interface {
	Recent(ctx context.Context, limit int) ([]*journal.RunRecord, error)
}

// Env holds the components commands operate on.
type Env struct {
	Store    version.Store
	Releases Releaser
	Tags     TagSource
	Backups  BackupCatalog

	// History is nil when the journal is disabled.
	History History

	closers []func() error
}

// OnClose registers fn to run when the environment is closed. Functions
// run in reverse registration order.
func (e *Env) OnClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// Close runs the registered close functions and joins their errors.
func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Loader builds an Env from the config file at path. An empty path uses
// the default search order.
type Loader func(ctx context.Context, path string) (*Env, error)

// Execute parses args, runs the selected command and prints its message
// to stdout. It returns the process exit code.
func Execute(ctx context.Context, args []string, stdout io.Writer, load Loader) int {
	var res Result
	root := newRootCommand(load, &res)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stdout)

	if err := root.ExecuteContext(ctx); err != nil {
		res = failure("%v\n\n%s", err, usage)
	}

	if res.Message != "" {
		fmt.Fprintln(stdout, res.Message)
	}
	return res.Code
}
