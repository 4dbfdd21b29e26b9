// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package backup

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/renameio"

	"github.com/tomtom215/releasekeeper/internal/fsutil"
)

// backup_info.txt keys, in file order.
const (
	keyCreated   = "Backup created"
	keyVersion   = "Version"
	keyPath      = "Path"
	keyHost      = "Host"
	keyUser      = "User"
	keyID        = "ID"
	keyDatabases = "Databases"
)

func writeInfo(b *Backup) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", keyCreated, b.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "%s: %s\n", keyVersion, b.Version)
	fmt.Fprintf(&sb, "%s: %s\n", keyPath, b.Source)
	fmt.Fprintf(&sb, "%s: %s\n", keyHost, b.Host)
	fmt.Fprintf(&sb, "%s: %s\n", keyUser, b.Operator)
	fmt.Fprintf(&sb, "%s: %s\n", keyID, b.ID)
	if len(b.Databases) > 0 {
		fmt.Fprintf(&sb, "%s: %s\n", keyDatabases, strings.Join(b.Databases, ","))
	}

	path := filepath.Join(b.Path, InfoFileName)
	if err := renameio.WriteFile(path, []byte(sb.String()), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", InfoFileName, err)
	}
	return nil
}

// readInfo parses backup_info.txt in dir. Unknown keys are ignored so that
// files written by older tooling still load.
func readInfo(dir string) (*Backup, error) {
	file, err := os.Open(filepath.Join(dir, InfoFileName)) //nolint:gosec // dir is a backup directory
	if err != nil {
		return nil, err
	}
	defer file.Close() //nolint:errcheck // Read-only

	b := &Backup{Path: dir, Version: UnknownVersion}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case keyCreated:
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				b.CreatedAt = t
			}
		case keyVersion:
			if value != "" {
				b.Version = value
			}
		case keyPath:
			b.Source = value
		case keyHost:
			b.Host = value
		case keyUser:
			b.Operator = value
		case keyID:
			b.ID = value
		case keyDatabases:
			if value != "" {
				b.Databases = strings.Split(value, ",")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", InfoFileName, err)
	}
	return b, nil
}

func buildManifest(b *Backup) (*Manifest, error) {
	manifest := &Manifest{
		ID:        b.ID,
		Version:   b.Version,
		CreatedAt: b.CreatedAt,
		Source:    b.Source,
		Databases: b.Databases,
	}

	err := filepath.WalkDir(b.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(b.Path, path)
		if err != nil {
			return err
		}
		if rel == InfoFileName || rel == ManifestFileName {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := fsutil.FileChecksum(path)
		if err != nil {
			return err
		}

		manifest.Files = append(manifest.Files, FileEntry{
			Path:     filepath.ToSlash(rel),
			Size:     info.Size(),
			Checksum: sum,
		})
		manifest.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(manifest.Files, func(i, j int) bool {
		return manifest.Files[i].Path < manifest.Files[j].Path
	})
	return manifest, nil
}

func writeManifest(dir string, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, ManifestFileName), data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", ManifestFileName, err)
	}
	return nil
}

// ReadManifest loads manifest.json from a backup directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName)) //nolint:gosec // dir is a backup directory
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &manifest, nil
}
