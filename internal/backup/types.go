// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package backup

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/tomtom215/releasekeeper/internal/version"
)

// ErrBackupFailed is returned when a snapshot could not be written.
var ErrBackupFailed = errors.New("backup failed")

const (
	// UnknownVersion labels backups taken while no version was recorded.
	UnknownVersion = "unknown"

	// AppDirName is the artifact tree copy inside a backup directory.
	AppDirName = "app"

	// InfoFileName is the key-line metadata file.
	InfoFileName = "backup_info.txt"

	// ManifestFileName is the checksum manifest.
	ManifestFileName = "manifest.json"

	backupPrefix       = "backup_"
	preMigrationPrefix = "pre_migration_"
	timestampLayout    = "20060102_150405"
)

// Backup is an immutable snapshot of the artifact tree and database state.
type Backup struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`

	// Version is the recorded version label at backup time, or UnknownVersion.
	Version string `json:"version"`

	// Source is the artifact tree that was copied.
	Source   string `json:"source"`
	Host     string `json:"host"`
	Operator string `json:"operator"`

	Databases []string `json:"databases,omitempty"`
	SizeBytes int64    `json:"size_bytes"`

	// Empty marks the sentinel returned when there was nothing to copy.
	Empty bool `json:"empty,omitempty"`
}

// IsEmpty reports whether b is nil or the empty-backup sentinel.
func (b *Backup) IsEmpty() bool {
	return b == nil || b.Empty
}

// AppDir returns the path of the artifact tree copy.
func (b *Backup) AppDir() string {
	return filepath.Join(b.Path, AppDirName)
}

// RecordedVersion parses the version label stored with the backup.
// It returns version.ErrUnknown for backups taken without a recorded version.
func (b *Backup) RecordedVersion() (version.Version, error) {
	if b.Version == "" || b.Version == UnknownVersion {
		return version.Version{}, version.ErrUnknown
	}
	return version.Parse(b.Version)
}

// Manifest lists every file in a backup with its checksum.
type Manifest struct {
	ID        string      `json:"id"`
	Version   string      `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	Source    string      `json:"source"`
	Databases []string    `json:"databases,omitempty"`
	Files     []FileEntry `json:"files"`
	TotalSize int64       `json:"total_size"`
}

// FileEntry is one manifest line. Path is slash separated and relative to
// the backup directory.
type FileEntry struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"sha256"`
}

func versionLabel(current *version.Version) string {
	if current == nil {
		return UnknownVersion
	}
	return current.String()
}
