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

	"github.com/tomtom215/releasekeeper/internal/fsutil"
	"github.com/tomtom215/releasekeeper/internal/logging"
)

// List returns all backups under the backups root, newest first.
// Directories that cannot be read are logged and skipped.
func (m *Manager) List() ([]*Backup, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []*Backup
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), backupPrefix) {
			continue
		}
		b, err := m.Load(filepath.Join(m.cfg.Dir, entry.Name()))
		if err != nil {
			logging.Warn().Err(err).Str("backup", entry.Name()).Msg("Skipping unreadable backup")
			continue
		}
		backups = append(backups, b)
	}

	sortNewestFirst(backups)
	return backups, nil
}

// Load reads the backup stored in dir. Metadata missing from
// backup_info.txt falls back to the directory's modification time.
func (m *Manager) Load(dir string) (*Backup, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("backup %s: %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("backup %s is not a directory", dir)
	}

	b, err := readInfo(abs)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		b = &Backup{Path: abs, Version: UnknownVersion}
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = stat.ModTime().UTC()
	}
	if b.ID == "" {
		b.ID = filepath.Base(abs)
	}

	if manifest, err := ReadManifest(abs); err == nil {
		b.SizeBytes = manifest.TotalSize
	} else if size, err := fsutil.DirSize(abs); err == nil {
		b.SizeBytes = size
	}

	return b, nil
}

// Latest returns the newest backup, or nil when there are none.
func (m *Manager) Latest() (*Backup, error) {
	backups, err := m.List()
	if err != nil || len(backups) == 0 {
		return nil, err
	}
	return backups[0], nil
}

func sortNewestFirst(backups []*Backup) {
	sort.SliceStable(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return filepath.Base(backups[i].Path) > filepath.Base(backups[j].Path)
	})
}
