// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package steps runs best-effort actions whose failure must never fail the
// surrounding workflow: permission fixes, staging cleanup, old directory
// removal. Their outcome is returned as a value, logged and counted.
package steps

import (
	"context"
	"time"

	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/metrics"
)

// Result is the outcome of a non-critical step.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// OK reports whether the step succeeded.
func (r Result) OK() bool { return r.Err == nil }

// RunNonCritical runs fn. A failure is logged at warn level and counted,
// then returned in the Result instead of as an error.
func RunNonCritical(ctx context.Context, name string, fn func(ctx context.Context) error) Result {
	start := time.Now()
	err := fn(ctx)
	res := Result{Name: name, Err: err, Duration: time.Since(start)}

	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("step", name).
			Msg("Non-critical step failed, continuing")
		metrics.RecordNonCriticalFailure(name)
	} else {
		logging.Ctx(ctx).Debug().Str("step", name).Dur("duration", res.Duration).Msg("Step completed")
	}
	return res
}

// Failed returns the failed results.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
