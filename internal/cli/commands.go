// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/version"
)

// DefaultHistoryCount is how many runs history prints without an argument.
const DefaultHistoryCount = 20

func runUpdate(ctx context.Context, env *Env, args []string) Result {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return failure("Usage: releasekeeper update <version>")
	}

	rep, err := env.Releases.Update(ctx, args[0])
	if rep == nil {
		return failure("Update failed: %v", err)
	}
	if err != nil {
		return failure("%s", rep.Summary())
	}
	return ok("%s", rep.Summary())
}

func runCheck(ctx context.Context, env *Env, _ []string) Result {
	current, label, err := currentVersion(env.Store)
	if err != nil {
		return failure("Failed to read current version: %v", err)
	}

	latest, err := env.Tags.Latest(ctx)
	if err != nil {
		return failure("Current version: %s\nLatest version:  unavailable (%v)", label, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current version: %s\n", label)
	fmt.Fprintf(&b, "Latest version:  %s\n", latest)
	switch {
	case current == nil || current.Less(latest):
		fmt.Fprintf(&b, "Update available: releasekeeper update %s", latest)
	case current.Equal(latest):
		b.WriteString("Up to date")
	default:
		b.WriteString("Running a version newer than the latest tag")
	}
	return ok("%s", b.String())
}

func runList(ctx context.Context, env *Env, _ []string) Result {
	tags, err := env.Tags.ListTags(ctx)
	if err != nil {
		return failure("Failed to list versions: %v", err)
	}
	if len(tags) == 0 {
		return ok("No version tags found")
	}
	return ok("%s", strings.Join(tags, "\n"))
}

func runVersion(_ context.Context, env *Env, _ []string) Result {
	_, label, err := currentVersion(env.Store)
	if err != nil {
		return failure("Failed to read current version: %v", err)
	}
	return ok("%s", label)
}

func runRollback(ctx context.Context, env *Env, args []string) Result {
	if len(args) == 0 {
		return listBackups(env)
	}
	if len(args) > 1 {
		return failure("Usage: releasekeeper rollback [<backup-path>]")
	}

	b, err := env.Backups.Load(args[0])
	if err != nil {
		return failure("Cannot use backup %s: %v", args[0], err)
	}

	rep, err := env.Releases.Rollback(ctx, b)
	if rep == nil {
		return failure("Rollback failed: %v", err)
	}
	if err != nil {
		return failure("%s", rep.Summary())
	}
	return ok("%s", rep.Summary())
}

// listBackups always exits 1: a rollback without a target did nothing.
func listBackups(env *Env) Result {
	backups, err := env.Backups.List()
	if err != nil {
		return failure("Failed to list backups: %v", err)
	}
	if len(backups) == 0 {
		return failure("No backups available\nUsage: releasekeeper rollback <backup-path>")
	}

	var b strings.Builder
	b.WriteString("Available backups (newest first):\n")
	for _, bk := range backups {
		fmt.Fprintf(&b, "  %s  version %s  %s  %s\n",
			bk.Path, bk.Version, bk.CreatedAt.UTC().Format(time.RFC3339), humanize.IBytes(uint64(max(bk.SizeBytes, 0))))
	}
	b.WriteString("Usage: releasekeeper rollback <backup-path>")
	return failure("%s", b.String())
}

func runHistory(ctx context.Context, env *Env, args []string) Result {
	if env.History == nil {
		return failure("The run journal is disabled (JOURNAL_ENABLED=false)")
	}

	count := DefaultHistoryCount
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return failure("History count must be a positive number, got %q", args[0])
		}
		count = n
	}

	records, err := env.History.Recent(ctx, count)
	if err != nil {
		return failure("Failed to read run history: %v", err)
	}
	if len(records) == 0 {
		return ok("No runs recorded")
	}

	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-8s  %-8s  %s -> %s  %-11s  %s (%s)",
			rec.StartedAt.UTC().Format(time.RFC3339), rec.ID, rec.Kind, rec.From, rec.To,
			rec.Outcome, rec.Duration().Round(time.Second), humanize.Time(rec.StartedAt))
		if rec.Error != "" {
			fmt.Fprintf(&b, "\n    error: %s", rec.Error)
		}
	}
	return ok("%s", b.String())
}

// currentVersion returns the recorded version, or nil and "unknown" when
// nothing is recorded.
func currentVersion(store version.Store) (*version.Version, string, error) {
	v, err := store.Current()
	if errors.Is(err, version.ErrUnknown) {
		logging.Debug().Msg("No version recorded")
		return nil, backup.UnknownVersion, nil
	}
	if err != nil {
		return nil, "", err
	}
	return &v, v.String(), nil
}
