// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tomtom215/releasekeeper/internal/logging"
)

// PruneOldBackups keeps the newest retention backups and deletes the rest,
// oldest first. Pre-migration snapshots are pruned to the same count.
// Per-directory delete failures are logged and skipped. Returns the number
// of backups deleted.
func (m *Manager) PruneOldBackups(retention int) (int, error) {
	if retention < 0 {
		return 0, fmt.Errorf("retention must not be negative, got: %d", retention)
	}

	backups, err := m.List()
	if err != nil {
		return 0, err
	}

	deleted := 0
	if len(backups) > retention {
		doomed := backups[retention:]
		for i := len(doomed) - 1; i >= 0; i-- {
			if deleteBackup(doomed[i].Path, doomed[i].ID) {
				deleted++
			}
		}
	}

	m.prunePreMigration(retention)

	if deleted > 0 {
		logging.Info().
			Int("deleted", deleted).
			Int("retention", retention).
			Msg("Pruned old backups")
	}
	return deleted, nil
}

func (m *Manager) prunePreMigration(retention int) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), preMigrationPrefix) {
			names = append(names, entry.Name())
		}
	}
	if len(names) <= retention {
		return
	}

	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-retention] {
		deleteBackup(filepath.Join(m.cfg.Dir, name), name)
	}
}

func deleteBackup(path, id string) bool {
	if err := os.RemoveAll(path); err != nil {
		logging.Warn().Err(err).Str("backup_id", id).Msg("Failed to delete backup")
		return false
	}
	return true
}
