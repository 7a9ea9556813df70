// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sigil-dev/ledger/internal/remote"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 300 * time.Millisecond

	// MaxDelay caps the delay between generic failures.
	MaxDelay = 10 * time.Second
	// MaxRateLimitDelay caps the delay after a rate-limit failure.
	MaxRateLimitDelay = 30 * time.Second
)

// RetryState is the per-call retry bookkeeping, reported to the OnRetry
// hook before each sleep.
type RetryState struct {
	Attempt      int           // failed attempts so far
	CurrentDelay time.Duration // delay about to be slept
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type retryConfig struct {
	maxAttempts  int
	initialDelay time.Duration
	sleep        Sleeper // nil: backoff's own timer waits
	onRetry      func(RetryState, error)
}

// RetryOption configures Retry.
type RetryOption func(*retryConfig)

// WithMaxAttempts sets how many times the operation may run.
func WithMaxAttempts(n int) RetryOption {
	return func(c *retryConfig) { c.maxAttempts = n }
}

// WithInitialDelay sets the delay before the second attempt.
func WithInitialDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) { c.initialDelay = d }
}

// WithSleeper replaces the timer wait between attempts (for testing).
func WithSleeper(s Sleeper) RetryOption {
	return func(c *retryConfig) { c.sleep = s }
}

// WithOnRetry registers a hook called with the retry state and the last
// error before each sleep.
func WithOnRetry(fn func(RetryState, error)) RetryOption {
	return func(c *retryConfig) { c.onRetry = fn }
}

// Retry runs op until it succeeds or the attempts are used up, and returns
// the last result unchanged. The delay doubles after each failure up to
// MaxDelay, or triples up to MaxRateLimitDelay when the failure was a rate
// limit. With maxAttempts <= 0, op is never called and the result carries a
// query.retry.max_retries_exceeded error.
func Retry[T any](ctx context.Context, op func(context.Context) Result[T], opts ...RetryOption) Result[T] {
	cfg := retryConfig{
		maxAttempts:  DefaultMaxAttempts,
		initialDelay: DefaultInitialDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.maxAttempts <= 0 {
		return Result[T]{Err: ledgererr.New(ledgererr.CodeQueryMaxRetriesExceeded, "max retries exceeded",
			ledgererr.Field("max_attempts", cfg.maxAttempts))}
	}

	policy := &retryPolicy{
		ctx:     ctx,
		initial: cfg.initialDelay,
		sleep:   cfg.sleep,
		onRetry: cfg.onRetry,
	}
	policy.Reset()
	attempt := func() (Result[T], error) {
		res := op(ctx)
		if res.Success {
			return res, nil
		}
		policy.state.Attempt++
		policy.lastKind, policy.lastErr = res.Kind(), res.Err
		return res, errAttemptFailed
	}

	// The error is either errAttemptFailed or the context's; the result
	// carries the failure either way.
	res, _ := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(cfg.maxAttempts)))
	return res
}

var errAttemptFailed = ledgererr.New(ledgererr.CodeQueryAttemptFailure, "query attempt failed")

// retryPolicy is the backoff.BackOff behind Retry. The next delay depends
// on the kind of the last failure. With an injected Sleeper the policy
// waits itself and hands the library a zero delay.
type retryPolicy struct {
	ctx      context.Context
	initial  time.Duration
	sleep    Sleeper
	onRetry  func(RetryState, error)
	state    RetryState
	lastKind remote.ErrorKind
	lastErr  error
}

var _ backoff.BackOff = (*retryPolicy)(nil)

func (p *retryPolicy) Reset() {
	p.state = RetryState{CurrentDelay: p.initial}
}

func (p *retryPolicy) NextBackOff() time.Duration {
	d := p.state.CurrentDelay
	if p.onRetry != nil {
		p.onRetry(p.state, p.lastErr)
	}
	slog.Debug("retrying after failure", "attempt", p.state.Attempt, "delay", d, "error_kind", p.lastKind)
	p.state.CurrentDelay = NextDelay(d, p.lastKind)

	if p.sleep == nil {
		return d
	}
	if err := p.sleep(p.ctx, d); err != nil {
		return backoff.Stop
	}
	return 0
}

// NextDelay returns the delay that follows current after a failure of kind.
func NextDelay(current time.Duration, kind remote.ErrorKind) time.Duration {
	if kind == remote.KindRateLimit {
		return min(current*3, MaxRateLimitDelay)
	}
	return min(current*2, MaxDelay)
}
