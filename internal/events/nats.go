// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/metrics"
)

// ErrPublishFailed wraps every publish error.
var ErrPublishFailed = errors.New("event publish failed")

// Config configures the NATS publisher.
type Config struct {
	URL           string
	SubjectPrefix string
	ClientName    string

	ConnectTimeout time.Duration
	FlushTimeout   time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration

	// Circuit breaker: after FailureThreshold consecutive failures further
	// publishes fail fast until BreakerTimeout has passed.
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultConfig returns publisher defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		SubjectPrefix:    DefaultSubjectPrefix,
		ClientName:       "releasekeeper",
		ConnectTimeout:   2 * time.Second,
		FlushTimeout:     2 * time.Second,
		MaxReconnects:    3,
		ReconnectWait:    500 * time.Millisecond,
		FailureThreshold: 3,
		BreakerTimeout:   30 * time.Second,
	}
}

// NATSPublisher publishes events as JSON on core NATS subjects.
type NATSPublisher struct {
	conn    *natsgo.Conn
	cfg     Config
	breaker *gobreaker.CircuitBreaker[any]
}

// NewNATSPublisher connects to cfg.URL.
func NewNATSPublisher(cfg Config) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: nats url is required", ErrPublishFailed)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 2 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}

	opts := []natsgo.Option{
		natsgo.Name(cfg.ClientName),
		natsgo.Timeout(cfg.ConnectTimeout),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("Event publisher disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("Event publisher reconnected")
		}),
	}

	conn, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrPublishFailed, cfg.URL, err)
	}

	return &NATSPublisher{
		conn:    conn,
		cfg:     cfg,
		breaker: newBreaker(cfg),
	}, nil
}

func newBreaker(cfg Config) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "events",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Event publisher circuit breaker changed state")
		},
	})
}

// Publish sends e and waits for the server to acknowledge the flush.
func (p *NATSPublisher) Publish(ctx context.Context, e *Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrPublishFailed, err)
	}
	subject := Subject(p.cfg.SubjectPrefix, e)

	_, err = p.breaker.Execute(func() (any, error) {
		if err := p.conn.Publish(subject, data); err != nil {
			return nil, err
		}
		flushCtx, cancel := context.WithTimeout(ctx, p.cfg.FlushTimeout)
		defer cancel()
		return nil, p.conn.FlushWithContext(flushCtx)
	})
	metrics.RecordEventPublish(err)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, subject, err)
	}
	return nil
}

// BreakerState returns the circuit breaker state for diagnostics.
func (p *NATSPublisher) BreakerState() string {
	return p.breaker.State().String()
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
