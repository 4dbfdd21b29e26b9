// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:    attempts,
		Interval:       5 * time.Millisecond,
		RequestTimeout: time.Second,
		DialTimeout:    time.Second,
	}
}

// flakyServer fails the first n requests with 503.
func flakyServer(t *testing.T, n int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= n {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestCheck_PassesAfterFailures(t *testing.T) {
	t.Parallel()

	srv, hits := flakyServer(t, 5)
	gate := New(fastConfig(12))

	outcome, err := gate.Check(context.Background(), Endpoint{URL: srv.URL + "/healthz"})
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !outcome.Passed() || outcome.Attempts != 6 {
		t.Errorf("outcome = %+v, want passed after 6 attempts", outcome)
	}
	if hits.Load() != 6 {
		t.Errorf("server hits = %d, want 6", hits.Load())
	}
}

func TestCheck_FailsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	srv, hits := flakyServer(t, 100)
	gate := New(fastConfig(3))

	outcome, err := gate.Check(context.Background(), Endpoint{URL: srv.URL})
	if !errors.Is(err, ErrHealthCheckFailed) {
		t.Fatalf("error = %v, want ErrHealthCheckFailed", err)
	}
	if outcome.Status != StatusFailed || outcome.Attempts != 3 || outcome.LastError == nil {
		t.Errorf("outcome = %+v", outcome)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
}

func TestCheck_PortClosed(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	gate := New(fastConfig(2))
	outcome, err := gate.Check(context.Background(), Endpoint{URL: "http://" + addr + "/healthz"})
	if !errors.Is(err, ErrHealthCheckFailed) {
		t.Fatalf("error = %v, want ErrHealthCheckFailed", err)
	}
	if outcome.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", outcome.Attempts)
	}
}

func TestCheck_FixedIntervalPacing(t *testing.T) {
	t.Parallel()

	srv, _ := flakyServer(t, 100)
	cfg := fastConfig(4)
	cfg.Interval = 30 * time.Millisecond
	gate := New(cfg)

	start := time.Now()
	_, _ = gate.Check(context.Background(), Endpoint{URL: srv.URL})
	elapsed := time.Since(start)

	// The first attempt is immediate, the remaining three wait one interval each.
	if elapsed < 80*time.Millisecond {
		t.Errorf("elapsed = %v, want at least ~3 intervals", elapsed)
	}
}

func TestCheck_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv, _ := flakyServer(t, 100)
	cfg := fastConfig(100)
	cfg.Interval = time.Hour
	gate := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome, err := gate.Check(ctx, Endpoint{URL: srv.URL})
	if !errors.Is(err, ErrHealthCheckFailed) {
		t.Fatalf("error = %v, want ErrHealthCheckFailed", err)
	}
	if outcome.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", outcome.Attempts)
	}
}

func TestCheck_InvalidURL(t *testing.T) {
	t.Parallel()

	gate := New(fastConfig(1))
	if _, err := gate.Check(context.Background(), Endpoint{URL: "/healthz"}); !errors.Is(err, ErrHealthCheckFailed) {
		t.Errorf("error = %v, want ErrHealthCheckFailed", err)
	}
}

func TestProbeAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ep   Endpoint
		want string
	}{
		{Endpoint{URL: "http://localhost:8080/health"}, "localhost:8080"},
		{Endpoint{URL: "http://localhost/health"}, "localhost:80"},
		{Endpoint{URL: "https://app.internal/health"}, "app.internal:443"},
		{Endpoint{URL: "http://127.0.0.1:8080/health", Port: 9090}, "127.0.0.1:9090"},
	}
	for _, tt := range tests {
		got, err := probeAddr(tt.ep)
		if err != nil || got != tt.want {
			t.Errorf("probeAddr(%+v) = %q, %v, want %q", tt.ep, got, err, tt.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	gate := New(Config{})
	if gate.cfg.MaxAttempts != 12 || gate.cfg.Interval != 10*time.Second {
		t.Errorf("defaults not applied: %+v", gate.cfg)
	}
}
