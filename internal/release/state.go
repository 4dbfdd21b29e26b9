// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package release

// State is a coordinator state.
type State string

const (
	StateIdle            State = "Idle"
	StateCheckingPrereqs State = "CheckingPrereqs"
	StateBackingUp       State = "BackingUp"
	StateFetching        State = "Fetching"
	StateBuilding        State = "Building"
	StateMigrating       State = "Migrating"
	StateDeploying       State = "Deploying"
	StateHealthChecking  State = "HealthChecking"
	StateRollingBack     State = "RollingBack"
	StateDone            State = "Done"
	StateFailed          State = "Failed"
)

// transitions lists the legal successors of each state. Idle may go
// straight to RollingBack for an operator-requested rollback.
var transitions = map[State][]State{
	StateIdle:            {StateCheckingPrereqs, StateRollingBack},
	StateCheckingPrereqs: {StateBackingUp, StateDone, StateFailed},
	StateBackingUp:       {StateFetching, StateFailed},
	StateFetching:        {StateBuilding, StateFailed},
	StateBuilding:        {StateMigrating, StateFailed},
	StateMigrating:       {StateDeploying, StateRollingBack, StateFailed},
	StateDeploying:       {StateHealthChecking, StateRollingBack, StateFailed},
	StateHealthChecking:  {StateDone, StateRollingBack, StateFailed},
	StateRollingBack:     {StateDone, StateFailed},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// rollsBack reports whether a failure in s triggers an automatic rollback.
func (s State) rollsBack() bool {
	return s == StateMigrating || s == StateDeploying || s == StateHealthChecking
}

// Outcome summarises how a run ended.
type Outcome string

const (
	OutcomeNoOp       Outcome = "no_op"
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeFailed     Outcome = "failed"
)
