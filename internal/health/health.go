// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package health gates a deploy on the service answering its liveness
// endpoint. Attempts are paced at a fixed interval; there is no backoff,
// so the total wait is bounded by MaxAttempts x Interval.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/metrics"
)

// ErrHealthCheckFailed is returned when every attempt failed.
var ErrHealthCheckFailed = errors.New("health check failed")

// Defaults for Config.
const (
	DefaultMaxAttempts    = 12
	DefaultInterval       = 10 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultDialTimeout    = 2 * time.Second
)

// Status is the final state of a health gate.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Outcome reports how a health gate ended.
type Outcome struct {
	Attempts  int
	Status    Status
	LastError error
}

// Passed reports whether the gate passed.
func (o Outcome) Passed() bool { return o.Status == StatusPassed }

// Endpoint is what the service must answer on.
type Endpoint struct {
	// URL of the liveness path. Success is HTTP 200.
	URL string

	// Port that must accept TCP connections before the URL is tried.
	// Zero means the URL's port.
	Port int
}

// Config bounds the gate.
type Config struct {
	MaxAttempts    int
	Interval       time.Duration
	RequestTimeout time.Duration
	DialTimeout    time.Duration
}

// DefaultConfig returns the stock limits: 12 attempts, 10s apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		Interval:       DefaultInterval,
		RequestTimeout: DefaultRequestTimeout,
		DialTimeout:    DefaultDialTimeout,
	}
}

// Checker runs a health gate.
type Checker interface {
	Check(ctx context.Context, ep Endpoint) (Outcome, error)
}

// Gate polls an endpoint.
type Gate struct {
	cfg    Config
	client *http.Client
	dialer *net.Dialer
}

// New creates a Gate. Zero config fields take their defaults.
func New(cfg Config) *Gate {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	return &Gate{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		dialer: &net.Dialer{Timeout: cfg.DialTimeout},
	}
}

// Check probes ep until it answers 200 or MaxAttempts is reached.
func (g *Gate) Check(ctx context.Context, ep Endpoint) (Outcome, error) {
	log := logging.Ctx(ctx)

	addr, err := probeAddr(ep)
	if err != nil {
		return Outcome{Status: StatusFailed, LastError: err}, fmt.Errorf("%w: %w", ErrHealthCheckFailed, err)
	}

	limiter := rate.NewLimiter(rate.Every(g.cfg.Interval), 1)
	outcome := Outcome{Status: StatusFailed}

	for outcome.Attempts < g.cfg.MaxAttempts {
		if err := limiter.Wait(ctx); err != nil {
			outcome.LastError = err
			return outcome, fmt.Errorf("%w: %w", ErrHealthCheckFailed, err)
		}
		outcome.Attempts++

		result, err := g.probe(ctx, addr, ep.URL)
		metrics.RecordHealthAttempt(result)
		if err == nil {
			outcome.Status = StatusPassed
			outcome.LastError = nil
			log.Info().Int("attempts", outcome.Attempts).Str("url", ep.URL).Msg("Health check passed")
			return outcome, nil
		}

		outcome.LastError = err
		log.Debug().
			Err(err).
			Int("attempt", outcome.Attempts).
			Int("max_attempts", g.cfg.MaxAttempts).
			Msg("Health check attempt failed")
	}

	log.Warn().
		Err(outcome.LastError).
		Int("attempts", outcome.Attempts).
		Str("url", ep.URL).
		Msg("Health check failed")
	return outcome, fmt.Errorf("%w after %d attempts: %w", ErrHealthCheckFailed, outcome.Attempts, outcome.LastError)
}

func (g *Gate) probe(ctx context.Context, addr, target string) (string, error) {
	conn, err := g.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "port_closed", fmt.Errorf("port %s not listening: %w", addr, err)
	}
	conn.Close() //nolint:errcheck,gosec // Probe connection only

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "error", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "error", err
	}
	defer resp.Body.Close() //nolint:errcheck // Response body

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck,gosec // Best effort

	if resp.StatusCode != http.StatusOK {
		return "bad_status", fmt.Errorf("liveness returned %d", resp.StatusCode)
	}
	return "ok", nil
}

// probeAddr returns host:port for the TCP probe.
func probeAddr(ep Endpoint) (string, error) {
	u, err := url.Parse(ep.URL)
	if err != nil {
		return "", fmt.Errorf("invalid health URL: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid health URL %q: missing host", ep.URL)
	}

	port := u.Port()
	switch {
	case ep.Port > 0:
		port = strconv.Itoa(ep.Port)
	case port != "":
	case u.Scheme == "https":
		port = "443"
	default:
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
