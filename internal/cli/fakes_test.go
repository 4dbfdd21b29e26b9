// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/releasekeeper/internal/backup"
	"github.com/tomtom215/releasekeeper/internal/journal"
	"github.com/tomtom215/releasekeeper/internal/release"
	"github.com/tomtom215/releasekeeper/internal/version"
)

type fakeReleaser struct {
	updates   []string
	rollbacks []string

	report *release.Report
	err    error
}

func (f *fakeReleaser) Update(_ context.Context, raw string) (*release.Report, error) {
	f.updates = append(f.updates, raw)
	return f.report, f.err
}

func (f *fakeReleaser) Rollback(_ context.Context, b *backup.Backup) (*release.Report, error) {
	f.rollbacks = append(f.rollbacks, b.Path)
	return f.report, f.err
}

type fakeTags struct {
	tags []string
	err  error
}

func (f *fakeTags) ListTags(context.Context) ([]string, error) {
	return f.tags, f.err
}

func (f *fakeTags) Latest(context.Context) (version.Version, error) {
	if f.err != nil {
		return version.Version{}, f.err
	}
	var latest *version.Version
	for _, tag := range f.tags {
		v, err := version.Parse(version.StripPrefix(tag))
		if err != nil {
			continue
		}
		if latest == nil || latest.Less(v) {
			latest = &v
		}
	}
	if latest == nil {
		return version.Version{}, errors.New("no version tags")
	}
	return *latest, nil
}

type fakeCatalog struct {
	backups []*backup.Backup
	err     error
}

func (f *fakeCatalog) List() ([]*backup.Backup, error) {
	return f.backups, f.err
}

func (f *fakeCatalog) Load(dir string) (*backup.Backup, error) {
	for _, b := range f.backups {
		if b.Path == dir {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%s: not a backup directory", dir)
}

type fakeHistory struct {
	records []*journal.RunRecord
	limit   int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]*journal.RunRecord, error) {
	f.limit = limit
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type harness struct {
	env      *Env
	releases *fakeReleaser
	tags     *fakeTags
	catalog  *fakeCatalog
	history  *fakeHistory
	store    *version.MemoryStore
	loads    []string
	closed   int
}

func newHarness() *harness {
	h := &harness{
		releases: &fakeReleaser{},
		tags:     &fakeTags{},
		catalog:  &fakeCatalog{},
		history:  &fakeHistory{},
		store:    version.NewMemoryStore(),
	}
	h.env = &Env{
		Store:    h.store,
		Releases: h.releases,
		Tags:     h.tags,
		Backups:  h.catalog,
		History:  h.history,
	}
	return h
}

// loader hands out the harness Env and counts Close calls.
func (h *harness) loader() Loader {
	return func(_ context.Context, path string) (*Env, error) {
		h.loads = append(h.loads, path)
		h.env.OnClose(func() error {
			h.closed++
			return nil
		})
		return h.env, nil
	}
}
