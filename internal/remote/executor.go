// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sigil-dev/ledger/internal/cache"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// Failure describes a failed remote call.
type Failure struct {
	Kind          ErrorKind
	Err           error
	NetworkOutage bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure classifies err into a Failure.
func NewFailure(err error) *Failure {
	kind, outage := Classify(err)
	return &Failure{Kind: kind, Err: err, NetworkOutage: outage}
}

// Outcome is the result of one remote call: Data on success, Failure
// otherwise.
type Outcome[T any] struct {
	Data    T
	Failure *Failure
}

// OK reports whether the call succeeded.
func (o Outcome[T]) OK() bool { return o.Failure == nil }

// Executor runs remote calls and records what it saw in the diagnostic
// flags. A nil flag set disables recording.
type Executor struct {
	flags *cache.Flags
}

// NewExecutor creates an Executor that records into flags.
func NewExecutor(flags *cache.Flags) *Executor {
	return &Executor{flags: flags}
}

// Execute runs fn once and classifies its result. Panics inside fn are
// recovered as connection errors.
func Execute[T any](ctx context.Context, ex *Executor, fn func(context.Context) (T, error)) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			err := ledgererr.Errorf(ledgererr.CodeRemoteQueryPanic, "remote query panicked: %v", r)
			out = Outcome[T]{Failure: &Failure{Kind: KindConnection, Err: err}}
			ex.record(ctx, out.Failure)
		}
	}()

	data, err := fn(ctx)
	if err != nil {
		out.Failure = NewFailure(err)
		ex.record(ctx, out.Failure)
		return out
	}
	out.Data = data
	ex.record(ctx, nil)
	return out
}

// Do executes req against c through Execute.
func Do(ctx context.Context, ex *Executor, c Client, req Request) Outcome[json.RawMessage] {
	return Execute(ctx, ex, func(ctx context.Context) (json.RawMessage, error) {
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return c.Do(ctx, req)
	})
}

func (ex *Executor) record(ctx context.Context, f *Failure) {
	if ex == nil || ex.flags == nil {
		return
	}

	status := cache.StatusConnected
	if f != nil {
		status = cache.StatusDisconnected
		flag, ok := flagFor(f)
		if ok {
			if err := ex.flags.Set(ctx, flag); err != nil {
				slog.Warn("recording remote error flag", "flag", flag, "error", err)
			}
		}
		slog.Debug("remote call failed", "kind", f.Kind, "network_outage", f.NetworkOutage, "error", f.Err)
	}
	if err := ex.flags.SetConnectionStatus(ctx, status); err != nil {
		slog.Warn("recording connection status", "status", status, "error", err)
	}
}

func flagFor(f *Failure) (cache.Flag, bool) {
	switch f.Kind {
	case KindRateLimit:
		return cache.FlagRateLimitError, true
	case KindSchema:
		return cache.FlagSchemaError, true
	case KindAuth:
		return cache.FlagAuthError, true
	}
	if f.NetworkOutage {
		return cache.FlagNetworkError, true
	}
	return "", false
}
