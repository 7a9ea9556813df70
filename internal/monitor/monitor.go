// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package monitor tracks reachability of the remote store and drives the
// retry and reset remediations.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/query"
	"github.com/sigil-dev/ledger/internal/remote"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/health"
)

const (
	// EscalationThreshold is the number of failed retries within
	// EscalationWindow that triggers an automatic FullReset.
	EscalationThreshold = 3
	EscalationWindow    = 5 * time.Minute

	DefaultInterval   = 30 * time.Second
	DefaultProbeTable = "personal_info"
)

// Session is the stored credential the monitor refreshes and clears.
type Session interface {
	Present(ctx context.Context) bool
	Refresh(ctx context.Context) error
	Clear(ctx context.Context) error
}

// Config wires a Monitor to its collaborators. Client is required.
type Config struct {
	Client     remote.Client
	Executor   *remote.Executor
	Flags      *cache.Flags
	Session    Session                   // optional
	ProbeTable string                    // defaults to DefaultProbeTable
	OnReset    func(ctx context.Context) // optional reload hook run at the end of FullReset
}

// Monitor is the process-wide connection health state machine:
//
//	unknown   -> healthy | unhealthy   (probe)
//	unhealthy -> healthy               (probe success, clears the retry window)
//	unhealthy -> unhealthy             (failed retry, +1 retry)
//	unhealthy -> resetting -> unknown  (FullReset, manual or escalated; starts a new episode)
type Monitor struct {
	mu            sync.Mutex
	client        remote.Client
	exec          *remote.Executor
	flags         *cache.Flags
	session       Session
	probeTable    string
	onReset       func(ctx context.Context)
	retryOpts     []query.RetryOption
	nowFunc       func() time.Time
	state         health.State
	totalRetries  int64
	resetCount    int64
	lastRetryAt   time.Time
	lastCheckedAt time.Time
	lastErrKind   remote.ErrorKind
	lastErr       string
	window        []time.Time // failed retries in the current unhealthy episode
	escalated     bool        // an automatic reset already ran in this episode
}

// New creates a Monitor in the unknown state.
func New(cfg Config) (*Monitor, error) {
	if cfg.Client == nil {
		return nil, ledgererr.New(ledgererr.CodeConfigValidateInvalidValue, "monitor requires a remote client")
	}
	table := cfg.ProbeTable
	if table == "" {
		table = DefaultProbeTable
	}
	if !remote.ValidIdentifier(table) {
		return nil, ledgererr.New(ledgererr.CodeConfigValidateInvalidValue, "invalid probe table", ledgererr.FieldTable(table))
	}
	return &Monitor{
		client:     cfg.Client,
		exec:       cfg.Executor,
		flags:      cfg.Flags,
		session:    cfg.Session,
		probeTable: table,
		onReset:    cfg.OnReset,
		nowFunc:    time.Now,
		state:      health.StateUnknown,
	}, nil
}

// SetNowFunc overrides the time source (for testing).
func (m *Monitor) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	m.nowFunc = fn
	m.mu.Unlock()
}

// SetRetryOptions sets extra options applied to RetryWithBackoff, after the
// attempt count.
func (m *Monitor) SetRetryOptions(opts ...query.RetryOption) {
	m.mu.Lock()
	m.retryOpts = opts
	m.mu.Unlock()
}

// State returns the current state.
func (m *Monitor) State() health.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the monitor and the raised error flags.
func (m *Monitor) Status(ctx context.Context) health.Status {
	m.mu.Lock()
	st := health.Status{
		State:         m.state,
		TotalRetries:  m.totalRetries,
		ResetCount:    m.resetCount,
		LastErrorKind: string(m.lastErrKind),
		LastError:     m.lastErr,
	}
	if !m.lastRetryAt.IsZero() {
		t := m.lastRetryAt
		st.LastRetryAt = &t
	}
	if !m.lastCheckedAt.IsZero() {
		t := m.lastCheckedAt
		st.LastCheckedAt = &t
	}
	m.mu.Unlock()

	if m.flags != nil {
		for _, f := range m.flags.Active(ctx) {
			st.Flags = append(st.Flags, string(f))
		}
	}
	return st
}

// Probe issues a one-row read of the probe table and updates the state.
func (m *Monitor) Probe(ctx context.Context) health.State {
	state, _ := m.probe(ctx)
	return state
}

func (m *Monitor) probe(ctx context.Context) (health.State, *remote.Failure) {
	out := remote.Do(ctx, m.exec, m.client, remote.Request{
		Table: m.probeTable,
		Op:    remote.OpSelect,
		Limit: 1,
	})
	if out.OK() {
		if m.flags != nil {
			if err := m.flags.ClearErrors(ctx); err != nil {
				slog.Warn("clearing error flags after healthy probe", "error", err)
			}
		}
		m.update(ctx, func() {
			m.state = health.StateHealthy
			m.lastCheckedAt = m.nowFunc()
			m.lastErrKind, m.lastErr = "", ""
			m.window = nil
			m.escalated = false
		})
		return health.StateHealthy, nil
	}

	m.update(ctx, func() {
		m.state = health.StateUnhealthy
		m.lastCheckedAt = m.nowFunc()
		m.lastErrKind = out.Failure.Kind
		m.lastErr = out.Failure.Err.Error()
	})
	err := ledgererr.Wrap(out.Failure, ledgererr.CodeMonitorProbeFailure, "probing remote store",
		ledgererr.FieldTable(m.probeTable))
	slog.Warn("remote store probe failed", "kind", out.Failure.Kind, "network_outage", out.Failure.NetworkOutage, "error", err)
	return health.StateUnhealthy, out.Failure
}

// RetryWithBackoff probes up to maxAttempts times with backoff, refreshing
// the stored session before each probe. It reports whether the store is
// healthy afterwards. A run that ends unhealthy counts as one failed retry.
func (m *Monitor) RetryWithBackoff(ctx context.Context, maxAttempts int) bool {
	m.mu.Lock()
	opts := append([]query.RetryOption{query.WithMaxAttempts(maxAttempts)}, m.retryOpts...)
	m.mu.Unlock()

	res := query.Retry(ctx, func(ctx context.Context) query.Result[health.State] {
		if m.session != nil && m.session.Present(ctx) {
			if err := m.session.Refresh(ctx); err != nil {
				slog.Warn("session refresh before probe failed", "error", err)
			}
		}
		state, failure := m.probe(ctx)
		if failure != nil {
			return query.Result[health.State]{Data: state, Err: failure}
		}
		return query.Result[health.State]{Data: state, Success: true}
	}, opts...)

	m.update(ctx, func() {
		now := m.nowFunc()
		m.totalRetries++
		m.lastRetryAt = now
		if !res.Success {
			m.window = append(m.window, now)
		}
	})
	return res.Success
}

// FullReset clears the stored session and error flags, reconnects the
// remote client and runs the reload hook. The monitor returns to unknown
// and a new episode starts: earlier failed retries no longer count toward
// escalation.
func (m *Monitor) FullReset(ctx context.Context) bool {
	return m.fullReset(ctx, false)
}

// fullReset always drops the retry window. A manual reset also clears the
// escalation latch; an escalated one keeps it until the next healthy probe.
func (m *Monitor) fullReset(ctx context.Context, escalated bool) bool {
	m.mu.Lock()
	m.state = health.StateResetting
	m.resetCount++
	m.window = nil
	if !escalated {
		m.escalated = false
	}
	m.mu.Unlock()
	slog.Warn("performing full connection reset", "escalated", escalated)

	var errs []error
	if m.session != nil {
		if err := m.session.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if m.flags != nil {
		if err := m.flags.Reset(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.client.Reconnect(ctx); err != nil {
		errs = append(errs, err)
	}
	if m.onReset != nil {
		m.onReset(ctx)
	}

	m.mu.Lock()
	m.state = health.StateUnknown
	m.mu.Unlock()

	if len(errs) > 0 {
		err := ledgererr.Wrap(errors.Join(errs...), ledgererr.CodeMonitorResetFailure, "full reset")
		slog.Error("full connection reset incomplete", "error", err)
		return false
	}
	return true
}

// Run probes every interval until ctx is done, starting immediately.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.Probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// update applies fn under the lock and then evaluates the escalation rule.
// The escalated reset runs after the lock is released.
func (m *Monitor) update(ctx context.Context, fn func()) {
	m.mu.Lock()
	fn()
	escalate := m.shouldEscalateLocked()
	if escalate {
		m.escalated = true
	}
	m.mu.Unlock()

	if escalate {
		slog.Warn("connection still unhealthy after repeated retries, escalating to full reset",
			"threshold", EscalationThreshold, "window", EscalationWindow)
		m.fullReset(ctx, true)
	}
}

func (m *Monitor) shouldEscalateLocked() bool {
	if m.state != health.StateUnhealthy || m.escalated {
		return false
	}
	cutoff := m.nowFunc().Add(-EscalationWindow)
	recent := 0
	for _, t := range m.window {
		if t.After(cutoff) {
			recent++
		}
	}
	return recent >= EscalationThreshold
}
