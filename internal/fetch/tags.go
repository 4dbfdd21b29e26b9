// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package fetch

import (
	"context"
	"fmt"
	"sort"

	"github.com/blang/semver"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/tomtom215/releasekeeper/internal/version"
)

// ListTags returns every tag name sorted ascending, most recent last.
// Tags that are not semantic versions sort first, lexically.
func (f *Fetcher) ListTags(ctx context.Context) ([]string, error) {
	repo, err := f.open(ctx)
	if err != nil {
		return nil, err
	}

	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("%w: list tags: %w", ErrFetchFailed, err)
	}

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list tags: %w", ErrFetchFailed, err)
	}

	SortTags(names)
	return names, nil
}

// Latest returns the greatest X.Y.Z version among the tags.
func (f *Fetcher) Latest(ctx context.Context) (version.Version, error) {
	tags, err := f.ListTags(ctx)
	if err != nil {
		return version.Version{}, err
	}

	var (
		latest version.Version
		found  bool
	)
	for _, tag := range tags {
		v, err := version.Parse(version.StripPrefix(tag))
		if err != nil {
			continue
		}
		if !found || latest.Less(v) {
			latest, found = v, true
		}
	}
	if !found {
		return version.Version{}, fmt.Errorf("%w: no version tags", ErrVersionNotFound)
	}
	return latest, nil
}

// SortTags orders tag names by semantic version.
func SortTags(tags []string) {
	parsed := make(map[string]*semver.Version, len(tags))
	for _, tag := range tags {
		if v, err := semver.ParseTolerant(tag); err == nil {
			parsed[tag] = &v
		}
	}

	sort.SliceStable(tags, func(i, j int) bool {
		a, b := parsed[tags[i]], parsed[tags[j]]
		switch {
		case a == nil && b == nil:
			return tags[i] < tags[j]
		case a == nil:
			return true
		case b == nil:
			return false
		case a.EQ(*b):
			return tags[i] < tags[j]
		default:
			return a.LT(*b)
		}
	})
}
