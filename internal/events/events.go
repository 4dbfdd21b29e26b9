// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package events publishes release lifecycle events (state transitions and
// finished runs) so that external collaborators such as notifiers can react
// to rollbacks and failures without being part of the workflow.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the event type. It becomes the last subject token.
type Type string

const (
	TypeTransition Type = "transition"
	TypeFinished   Type = "finished"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "releasekeeper"

// Event is the payload published for every lifecycle change.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	FromState string    `json:"from_state,omitempty"`
	ToState   string    `json:"to_state,omitempty"`
	Current   string    `json:"current_version,omitempty"`
	Target    string    `json:"target_version,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
	Host      string    `json:"host,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent returns an event with a fresh ID and the current time.
func NewEvent(t Type, runID, kind string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		RunID:     runID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// Subject returns "<prefix>.<kind>.<type>".
func Subject(prefix string, e *Event) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	kind := e.Kind
	if kind == "" {
		kind = "run"
	}
	return prefix + "." + kind + "." + string(e.Type)
}

// Publisher publishes lifecycle events. Publish failures are reported to the
// caller, which treats them as non-critical.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}

// Nop drops every event. Used when events are disabled.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }
func (Nop) Close() error                          { return nil }

// Memory keeps published events in memory. Used by tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

// Publish implements Publisher.
func (m *Memory) Publish(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, *e)
	return nil
}

// Close implements Publisher.
func (m *Memory) Close() error { return nil }

// Events returns a copy of the published events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Transitions returns the "to" states of transition events in order.
func (m *Memory) Transitions() []string {
	var out []string
	for _, e := range m.Events() {
		if e.Type == TypeTransition {
			out = append(out, e.ToState)
		}
	}
	return out
}
