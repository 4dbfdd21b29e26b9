// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package fetch resolves a target version in the source repository and
// exports its tree to a staging location.
//
// Resolution order for version X.Y.Z:
//
//  1. annotated tag vX.Y.Z, checked out as branch release-vX.Y.Z
//  2. tag vX.Y.Z, checked out detached
//  3. any ref named X.Y.Z
package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/tomtom215/releasekeeper/internal/fsutil"
	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/version"
)

var (
	// ErrVersionNotFound is returned when no tag or ref matches the version.
	ErrVersionNotFound = errors.New("version not found")

	// ErrFetchFailed covers repository and transport errors.
	ErrFetchFailed = errors.New("fetch failed")
)

// DefaultBranchPrefix names branches created from annotated tags.
const DefaultBranchPrefix = "release-"

// Config configures a Fetcher.
type Config struct {
	// Dir is the local source checkout.
	Dir string

	// Remote, when set, is cloned into Dir on first use and fetched on
	// every later use.
	Remote string

	// StagingDir receives one exported tree per version.
	StagingDir string

	BranchPrefix string
}

// Fetcher retrieves versions from a git repository.
type Fetcher struct {
	cfg Config
}

// New creates a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("source directory is required")
	}
	if cfg.StagingDir == "" {
		return nil, fmt.Errorf("staging directory is required")
	}
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = DefaultBranchPrefix
	}
	return &Fetcher{cfg: cfg}, nil
}

// StagingDir returns the root that Fetch exports into.
func (f *Fetcher) StagingDir() string {
	return f.cfg.StagingDir
}

// Fetch resolves target, checks it out in the source directory and
// exports the tree without .git to <staging>/<version>. It returns the
// exported location.
func (f *Fetcher) Fetch(ctx context.Context, target version.Version) (string, error) {
	log := logging.Ctx(ctx)

	repo, err := f.open(ctx)
	if err != nil {
		return "", err
	}

	how, err := f.checkout(repo, target)
	if err != nil {
		return "", err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	root := wt.Filesystem.Root()

	location := filepath.Join(f.cfg.StagingDir, target.String())
	if err := os.RemoveAll(location); err != nil {
		return "", fmt.Errorf("%w: clear staging %s: %w", ErrFetchFailed, location, err)
	}
	if err := os.MkdirAll(f.cfg.StagingDir, 0o750); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if err := fsutil.CopyTree(root, location, fsutil.SkipGitDir); err != nil {
		return "", fmt.Errorf("%w: export %s: %w", ErrFetchFailed, target, err)
	}

	log.Info().
		Str("version", target.String()).
		Str("resolved_by", how).
		Str("location", location).
		Msg("Version fetched")
	return location, nil
}

// open returns the source repository, cloning or fetching from the remote
// when one is configured.
func (f *Fetcher) open(ctx context.Context) (*git.Repository, error) {
	_, statErr := os.Stat(filepath.Join(f.cfg.Dir, git.GitDirName))

	if os.IsNotExist(statErr) && f.cfg.Remote != "" {
		logging.Ctx(ctx).Info().Str("remote", f.cfg.Remote).Str("dir", f.cfg.Dir).Msg("Cloning source repository")
		repo, err := git.PlainCloneContext(ctx, f.cfg.Dir, false, &git.CloneOptions{
			URL:  f.cfg.Remote,
			Tags: git.AllTags,
		})
		if err != nil {
			os.RemoveAll(f.cfg.Dir) //nolint:errcheck,gosec // Partial clone is useless
			return nil, fmt.Errorf("%w: clone %s: %w", ErrFetchFailed, f.cfg.Remote, err)
		}
		return repo, nil
	}

	repo, err := git.PlainOpen(f.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: open source repository %s: %w", ErrFetchFailed, f.cfg.Dir, err)
	}

	if f.cfg.Remote != "" {
		err = repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: git.DefaultRemoteName,
			RefSpecs: []config.RefSpec{
				"+refs/heads/*:refs/remotes/origin/*",
				"+refs/tags/*:refs/tags/*",
			},
			Tags:  git.AllTags,
			Force: true,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil, fmt.Errorf("%w: fetch from %s: %w", ErrFetchFailed, f.cfg.Remote, err)
		}
	}
	return repo, nil
}

// checkout applies the resolution order and returns which rule matched.
func (f *Fetcher) checkout(repo *git.Repository, target version.Version) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	tagName := target.Tag()
	if ref, err := repo.Tag(tagName); err == nil {
		commit, annotated, err := peelTag(repo, ref)
		if err != nil {
			return "", fmt.Errorf("%w: resolve tag %s: %w", ErrFetchFailed, tagName, err)
		}

		if annotated {
			branch := plumbing.NewBranchReferenceName(f.cfg.BranchPrefix + tagName)
			if err := repo.Storer.SetReference(plumbing.NewHashReference(branch, commit)); err == nil {
				if err := wt.Checkout(&git.CheckoutOptions{Branch: branch, Force: true}); err == nil {
					return "tag-branch", nil
				}
			}
		}

		if err := wt.Checkout(&git.CheckoutOptions{Hash: commit, Force: true}); err != nil {
			return "", fmt.Errorf("%w: checkout tag %s: %w", ErrFetchFailed, tagName, err)
		}
		return "tag", nil
	} else if !errors.Is(err, git.ErrTagNotFound) {
		return "", fmt.Errorf("%w: lookup tag %s: %w", ErrFetchFailed, tagName, err)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(target.String()))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrVersionNotFound, target)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return "", fmt.Errorf("%w: checkout ref %s: %w", ErrFetchFailed, target, err)
	}
	return "ref", nil
}

// peelTag returns the commit a tag points at and whether the tag is
// annotated.
func peelTag(repo *git.Repository, ref *plumbing.Reference) (plumbing.Hash, bool, error) {
	tagObj, err := repo.TagObject(ref.Hash())
	switch {
	case err == nil:
		commit, err := tagObj.Commit()
		if err != nil {
			return plumbing.ZeroHash, true, err
		}
		return commit.Hash, true, nil
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return ref.Hash(), false, nil
	default:
		return plumbing.ZeroHash, false, err
	}
}
