// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package query

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/remote"
)

// Result is what the wrapper hands back to callers. It never carries a
// panic or an unclassified failure: Err is nil on success and otherwise a
// *remote.Failure or a max_retries_exceeded error.
type Result[T any] struct {
	Data      T
	Err       error
	Success   bool
	UsedCache bool
}

// Failure returns the classified remote failure, if any.
func (r Result[T]) Failure() (*remote.Failure, bool) {
	var f *remote.Failure
	if errors.As(r.Err, &f) {
		return f, true
	}
	return nil, false
}

// Kind returns the failure kind, or "" when the result is not a remote failure.
func (r Result[T]) Kind() remote.ErrorKind {
	if f, ok := r.Failure(); ok {
		return f.Kind
	}
	return ""
}

// Degraded reports whether Data is stale or fallback data served because
// the remote call failed.
func (r Result[T]) Degraded() bool {
	return !r.Success
}

type userKey struct{}

// WithUser returns a context carrying the current user id. The wrapper uses
// it to address the cache.
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the user id set by WithUser.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
