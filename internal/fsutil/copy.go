// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package fsutil holds the filesystem primitives shared by backups, staging
// and rollback: recursive tree copy, checksums and directory sizing.
package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// SkipFunc reports whether the entry at rel (relative to the copy root)
// should be left out. Returning true for a directory skips its contents.
type SkipFunc func(rel string, d fs.DirEntry) bool

// SkipGitDir excludes version control metadata.
func SkipGitDir(rel string, d fs.DirEntry) bool {
	return d.IsDir() && d.Name() == ".git"
}

// CopyTree copies the directory src to dst, preserving file modes and
// symlinks. dst must not exist.
func CopyTree(src, dst string, skip SkipFunc) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("destination %s already exists", dst)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel != "." && skip != nil && skip(rel, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		return copyEntry(path, target, d)
	})
}

func copyEntry(path, target string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	switch mode := info.Mode(); {
	case mode.IsDir():
		return os.MkdirAll(target, mode.Perm()|0o700)
	case mode&os.ModeSymlink != 0:
		link, err := os.Readlink(path)
		if err != nil {
			return err
		}
		return os.Symlink(link, target)
	case mode.IsRegular():
		return CopyFile(path, target, mode.Perm())
	default:
		// Sockets, devices and pipes are not part of an artifact tree.
		return nil
	}
}

// CopyFile copies a single regular file, creating parent directories.
func CopyFile(src, dst string, perm fs.FileMode) error {
	sourceFile, err := os.Open(src) //nolint:gosec // Paths are produced by the tree walk
	if err != nil {
		return err
	}
	defer sourceFile.Close() //nolint:errcheck // Best effort cleanup

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	destFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close() //nolint:errcheck,gosec // Already returning an error
		return err
	}
	return destFile.Close()
}

// FileChecksum returns the hex encoded SHA-256 of the file.
func FileChecksum(path string) (string, error) {
	file, err := os.Open(path) //nolint:gosec // Caller controlled path
	if err != nil {
		return "", err
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// DirSize sums the sizes of regular files under root.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
