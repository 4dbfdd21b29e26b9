// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package release

import (
	"context"
	"os"
	"time"

	"github.com/tomtom215/releasekeeper/internal/events"
	"github.com/tomtom215/releasekeeper/internal/journal"
	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/metrics"
)

// run tracks the state of one coordinator run.
type run struct {
	c      *Coordinator
	report *Report
	state  State
}

func (c *Coordinator) startRun(ctx context.Context, kind journal.Kind) (context.Context, *run) {
	id := logging.GenerateRunID()
	ctx = logging.ContextWithRunID(ctx, id)
	r := &run{
		c: c,
		report: &Report{
			RunID:     id,
			Kind:      kind,
			StartedAt: c.now().UTC(),
		},
		state: StateIdle,
	}
	logging.Ctx(ctx).Info().Str("kind", string(kind)).Msg("Run started")
	return ctx, r
}

// to moves the run into next and announces the change.
func (r *run) to(ctx context.Context, next State) {
	prev := r.state
	log := logging.Ctx(ctx)
	if !CanTransition(prev, next) {
		log.Error().Str("from", string(prev)).Str("to", string(next)).Msg("Illegal state transition")
	}
	r.state = next
	if next == StateFailed && prev != StateRollingBack {
		r.report.failedIn = prev
	}

	log.Info().Str("from", string(prev)).Str("to", string(next)).Msg("State transition")
	metrics.RecordTransition(string(prev), string(next))

	e := r.event(events.TypeTransition)
	e.FromState = string(prev)
	e.ToState = string(next)
	if next == StateFailed && r.report.Err != nil {
		e.Error = r.report.Err.Error()
	}
	r.publish(ctx, e)
}

// stage enters state, runs fn and records its duration.
func (r *run) stage(ctx context.Context, state State, fn func(ctx context.Context) error) error {
	r.to(ctx, state)
	start := time.Now()
	err := fn(ctx)
	metrics.RecordStage(string(state), time.Since(start), err)
	return err
}

// fail ends the run in Failed.
func (r *run) fail(ctx context.Context, err error) *Report {
	r.report.Err = err
	r.report.Outcome = OutcomeFailed
	r.to(ctx, StateFailed)
	return r.finish(ctx)
}

// finish journals the run, publishes its summary and records metrics.
func (r *run) finish(ctx context.Context) *Report {
	rep := r.report
	if !r.state.Terminal() {
		logging.Ctx(ctx).Error().Str("state", string(r.state)).Msg("Run finished outside a terminal state")
	}
	rep.FinalState = r.state
	rep.FinishedAt = r.c.now().UTC()
	if rep.Outcome == "" {
		rep.Outcome = OutcomeSucceeded
	}

	rec := &journal.RunRecord{
		ID:         rep.RunID,
		Kind:       rep.Kind,
		From:       rep.Current,
		To:         rep.Target,
		FinalState: string(rep.FinalState),
		Outcome:    string(rep.Outcome),
		Operator:   r.c.cfg.Operator,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
	}
	if rep.Err != nil {
		rec.Error = rep.Err.Error()
	}
	if !rep.Backup.IsEmpty() {
		rec.BackupPath = rep.Backup.Path
	}
	if err := r.c.deps.Journal.Append(ctx, rec); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to append run to journal")
	}

	e := r.event(events.TypeFinished)
	e.ToState = string(rep.FinalState)
	e.Outcome = string(rep.Outcome)
	e.Error = rec.Error
	r.publish(ctx, e)

	metrics.RecordRun(string(rep.Kind), string(rep.Outcome), rep.FinishedAt.Sub(rep.StartedAt))

	log := logging.Ctx(ctx)
	ev := log.Info()
	if rep.Outcome == OutcomeFailed || rep.Outcome == OutcomeRolledBack {
		ev = log.Error().Err(rep.Err)
	}
	ev.Str("outcome", string(rep.Outcome)).
		Str("final_state", string(rep.FinalState)).
		Str("from", rep.Current).
		Str("to", rep.Target).
		Dur("duration", rep.FinishedAt.Sub(rep.StartedAt)).
		Msg("Run finished")
	return rep
}

func (r *run) event(t events.Type) *events.Event {
	e := events.NewEvent(t, r.report.RunID, string(r.report.Kind))
	e.Current = r.report.Current
	e.Target = r.report.Target
	e.Host = hostname()
	return e
}

// publish sends e. Event delivery never affects the run.
func (r *run) publish(ctx context.Context, e *events.Event) {
	if err := r.c.deps.Events.Publish(ctx, e); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("type", string(e.Type)).Msg("Failed to publish event")
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
