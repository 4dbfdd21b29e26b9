// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package journal keeps a durable history of update and rollback runs in
// BadgerDB. The `history` command reads it back newest first.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/releasekeeper/internal/logging"
)

// Kind distinguishes run types.
type Kind string

const (
	KindUpdate   Kind = "update"
	KindRollback Kind = "rollback"
)

// RunRecord summarises one run.
type RunRecord struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	FinalState string    `json:"final_state"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	BackupPath string    `json:"backup_path,omitempty"`
	Operator   string    `json:"operator,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Recorder appends run records.
type Recorder interface {
	Append(ctx context.Context, rec *RunRecord) error
}

// Nop discards records. Used when the journal is disabled.
type Nop struct{}

// Append implements Recorder.
func (Nop) Append(context.Context, *RunRecord) error { return nil }

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal is closed")

const runPrefix = "run:"

// Config configures the journal.
type Config struct {
	Path string

	// InMemory keeps the journal in memory only. Used by tests.
	InMemory bool

	SyncWrites bool

	// Retention drops records older than this. Zero keeps them forever.
	Retention time.Duration
}

// Journal is a BadgerDB backed Recorder.
type Journal struct {
	db        *badger.DB
	retention time.Duration
}

// Open opens or creates the journal.
func Open(cfg Config) (*Journal, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("journal path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	// One small record per run.
	opts.ValueLogFileSize = 16 << 20
	opts.NumCompactors = 2

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Debug().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("Run journal opened")
	return &Journal{db: db, retention: cfg.Retention}, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Append stores rec. Keys sort by start time so iteration is chronological.
func (j *Journal) Append(ctx context.Context, rec *RunRecord) error {
	if j.db == nil {
		return ErrClosed
	}
	if rec.ID == "" {
		return fmt.Errorf("run record ID is required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(recordKey(rec), data)
		if j.retention > 0 {
			e = e.WithTTL(j.retention)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write to BadgerDB: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*RunRecord, error) {
	if j.db == nil {
		return nil, ErrClosed
	}

	var records []*RunRecord
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(runPrefix)
		seek := append([]byte(runPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var rec RunRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Journal failed to unmarshal run record")
				continue
			}
			records = append(records, &rec)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate run records: %w", err)
	}
	return records, nil
}

// recordKey is run:<unix nanos, zero padded>:<id>.
func recordKey(rec *RunRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", runPrefix, rec.StartedAt.UnixNano(), rec.ID))
}
