// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package query

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/remote"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Wrapper runs cache-first remote reads. It is safe for concurrent use.
type Wrapper struct {
	cache *cache.Store
	exec  *remote.Executor
	group *singleflight.Group // nil unless coalescing is enabled
}

// WrapperOption configures a Wrapper.
type WrapperOption func(*Wrapper)

// WithCoalescing makes concurrent reads of the same cache key share one
// in-flight remote call.
func WithCoalescing(enabled bool) WrapperOption {
	return func(w *Wrapper) {
		if enabled {
			w.group = &singleflight.Group{}
		} else {
			w.group = nil
		}
	}
}

// NewWrapper creates a Wrapper over the given cache and executor.
func NewWrapper(c *cache.Store, ex *remote.Executor, opts ...WrapperOption) *Wrapper {
	w := &Wrapper{cache: c, exec: ex}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Cache returns the wrapper's cache store.
func (w *Wrapper) Cache() *cache.Store { return w.cache }

// Executor returns the wrapper's remote executor.
func (w *Wrapper) Executor() *remote.Executor { return w.exec }

// SafeOption configures a single Safe call.
type SafeOption[T any] func(*safeConfig[T])

type safeConfig[T any] struct {
	fallback T
}

// WithFallback sets the value returned when the remote call fails and
// nothing is cached.
func WithFallback[T any](v T) SafeOption[T] {
	return func(c *safeConfig[T]) { c.fallback = v }
}

// Safe reads kind for the context's user. A fresh cache entry is returned
// without a remote call. Otherwise fn runs through the executor: success is
// written through to the cache, failure falls back to any cached copy and
// then to the fallback value. Safe never panics.
func Safe[T any](ctx context.Context, w *Wrapper, kind types.EntityKind, fn func(context.Context) (T, error), opts ...SafeOption[T]) (res Result[T]) {
	var cfg safeConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		cached    T
		hasCached bool
	)
	defer func() {
		if r := recover(); r != nil {
			err := ledgererr.Errorf(ledgererr.CodeRemoteQueryPanic, "query panicked: %v", r)
			slog.Error("recovered panic in query", "kind", kind, "error", err)
			res = Result[T]{Data: cfg.fallback, Err: &remote.Failure{Kind: remote.KindConnection, Err: err}}
			if hasCached {
				res.Data, res.UsedCache = cached, true
			}
		}
	}()

	key, useCache := w.cacheKey(ctx, kind)
	if useCache {
		var fresh bool
		cached, fresh, hasCached = lookup[T](ctx, w.cache, key)
		if hasCached && fresh {
			return Result[T]{Data: cached, Success: true, UsedCache: true}
		}
	}

	out := run(ctx, w, key, useCache, fn)
	if out.OK() {
		return Result[T]{Data: out.Data, Success: true}
	}

	if hasCached {
		slog.Warn("serving cached data after remote failure", "kind", kind, "error_kind", out.Failure.Kind)
		return Result[T]{Data: cached, Err: out.Failure, UsedCache: true}
	}
	return Result[T]{Data: cfg.fallback, Err: out.Failure}
}

func (w *Wrapper) cacheKey(ctx context.Context, kind types.EntityKind) (types.CacheKey, bool) {
	if w.cache == nil {
		return types.CacheKey{}, false
	}
	userID, ok := UserFromContext(ctx)
	if !ok {
		return types.CacheKey{}, false
	}
	key, err := types.NewCacheKey(kind, userID)
	if err != nil {
		slog.Warn("skipping cache for invalid key", "kind", kind, "error", err)
		return types.CacheKey{}, false
	}
	return key, true
}

// lookup decodes the cached payload for key. Entries that cannot be decoded
// into T count as absent.
func lookup[T any](ctx context.Context, c *cache.Store, key types.CacheKey) (v T, fresh, ok bool) {
	entry, ok, warn := c.Get(ctx, key)
	if warn != nil {
		slog.Warn("cache read", "key", key.String(), "error", warn)
	}
	if !ok {
		return v, false, false
	}
	if err := json.Unmarshal(entry.Payload, &v); err != nil {
		slog.Warn("cache read", "key", key.String(),
			"error", ledgererr.Wrap(err, ledgererr.CodeCacheEntryParseError, "decoding cached payload"))
		var zero T
		return zero, false, false
	}
	return v, c.IsFresh(entry), true
}

// run executes fn and writes successful results through to the cache. With
// coalescing enabled, concurrent calls for the same key share one execution.
// The shared call is detached from the caller that started it, so one
// caller cancelling does not fail the others; each caller still returns
// as soon as its own context is done.
func run[T any](ctx context.Context, w *Wrapper, key types.CacheKey, useCache bool, fn func(context.Context) (T, error)) remote.Outcome[T] {
	exec := func(ctx context.Context) remote.Outcome[T] {
		out := remote.Execute(ctx, w.exec, fn)
		if out.OK() && useCache {
			if _, err := w.cache.Put(ctx, key, out.Data); err != nil {
				slog.Warn("cache write-through failed", "key", key.String(), "error", err)
			}
		}
		return out
	}
	if w.group == nil || !useCache {
		return exec(ctx)
	}

	shared := context.WithoutCancel(ctx)
	ch := w.group.DoChan(key.String(), func() (any, error) {
		return exec(shared), nil
	})

	select {
	case <-ctx.Done():
		return remote.Outcome[T]{Failure: remote.NewFailure(ctx.Err())}
	case r := <-ch:
		if r.Shared {
			slog.Debug("coalesced remote read", "key", key.String())
		}
		out, ok := r.Val.(remote.Outcome[T])
		if !ok {
			// Another caller used the same key with a different result type.
			return exec(ctx)
		}
		return out
	}
}
