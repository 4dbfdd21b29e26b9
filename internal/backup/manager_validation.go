// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomtom215/releasekeeper/internal/fsutil"
)

// Verify checks that the backup holds an artifact tree and, when a manifest
// is present, that every listed file still matches its checksum. Backups
// without a manifest are accepted on the artifact tree alone.
func Verify(b *Backup) error {
	if b.IsEmpty() {
		return fmt.Errorf("backup is empty")
	}
	if !fsutil.IsDir(b.AppDir()) {
		return fmt.Errorf("backup %s has no artifact tree", b.Path)
	}

	manifest, err := ReadManifest(b.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, f := range manifest.Files {
		path := filepath.Join(b.Path, filepath.FromSlash(f.Path))
		sum, err := fsutil.FileChecksum(path)
		if err != nil {
			return fmt.Errorf("backup file %s: %w", f.Path, err)
		}
		if sum != f.Checksum {
			return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", f.Path, f.Checksum, sum)
		}
	}
	return nil
}
