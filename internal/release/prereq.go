// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package release

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/disk"
)

// ErrPrerequisiteFailed is returned when a run is refused before any mutation.
var ErrPrerequisiteFailed = errors.New("prerequisite check failed")

// DefaultMinFreeBytes is the free space floor at the deploy root.
const DefaultMinFreeBytes uint64 = 1 << 30

// FreeSpaceFunc reports free bytes on the filesystem holding path.
type FreeSpaceFunc func(ctx context.Context, path string) (uint64, error)

// DiskFree uses gopsutil to read filesystem usage.
func DiskFree(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// checkDiskSpace requires strictly more than floor free bytes at root.
func checkDiskSpace(ctx context.Context, free FreeSpaceFunc, root string, floor uint64) error {
	avail, err := free(ctx, root)
	if err != nil {
		return fmt.Errorf("%w: read free space at %s: %w", ErrPrerequisiteFailed, root, err)
	}
	if avail <= floor {
		return fmt.Errorf("%w: insufficient disk space at %s: %s free, need more than %s",
			ErrPrerequisiteFailed, root, humanize.IBytes(avail), humanize.IBytes(floor))
	}
	return nil
}

// checkWritable probes root by creating and removing a temp file.
func checkWritable(root string) error {
	f, err := os.CreateTemp(root, ".releasekeeper-probe-*")
	if err != nil {
		return fmt.Errorf("%w: deploy root %s is not writable: %w", ErrPrerequisiteFailed, root, err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("%w: remove probe file: %w", ErrPrerequisiteFailed, err)
	}
	return nil
}
