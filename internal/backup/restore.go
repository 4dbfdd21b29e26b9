// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package backup

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tomtom215/releasekeeper/internal/fsutil"
	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/shell"
)

// RestoreTree copies the backup's artifact tree to dest, which must not
// exist.
func (m *Manager) RestoreTree(b *Backup, dest string) error {
	if err := fsutil.CopyTree(b.AppDir(), dest, nil); err != nil {
		return fmt.Errorf("restore artifact tree to %s: %w", dest, err)
	}
	return nil
}

// RestoreDatabases runs the restore command of every engine whose dump file
// is present in the backup, and returns the engines restored. Engines are
// matched by dump file, not by detection, so a dump is restored even when
// the server was reinstalled since.
func (m *Manager) RestoreDatabases(ctx context.Context, b *Backup) ([]string, error) {
	var restored []string
	for _, engine := range m.engines {
		src := filepath.Join(b.Path, engine.DumpFile())
		if !shell.Exists(src) {
			continue
		}

		logging.Ctx(ctx).Info().
			Str("engine", engine.Name).
			Str("dump", src).
			Msg("Restoring database dump")

		if err := engine.Restore(ctx, m.runner, src); err != nil {
			return restored, fmt.Errorf("restore %s: %w", engine.Name, err)
		}
		restored = append(restored, engine.Name)
	}
	return restored, nil
}
