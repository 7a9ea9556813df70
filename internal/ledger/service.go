// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package ledger is the caller-facing data-access surface: cache-first
// reads, retried reads, writes that invalidate the cache, and the cache and
// health maintenance operations.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/monitor"
	"github.com/sigil-dev/ledger/internal/query"
	"github.com/sigil-dev/ledger/internal/remote"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/health"
	"github.com/sigil-dev/ledger/pkg/types"
)

// RetryConfig holds the defaults for RetryQuery.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// Config wires a Service. Client, Cache and Flags are required.
type Config struct {
	Client   remote.Client
	Cache    *cache.Store
	Flags    *cache.Flags
	Monitor  *monitor.Monitor // optional; CheckDatabaseHealth reports unknown without it
	Coalesce bool
	Retry    RetryConfig

	// RetryOptions are appended to every RetryQuery (for testing).
	RetryOptions []query.RetryOption
}

// Service is safe for concurrent use.
type Service struct {
	client    remote.Client
	cache     *cache.Store
	flags     *cache.Flags
	exec      *remote.Executor
	wrapper   *query.Wrapper
	monitor   *monitor.Monitor
	retryOpts []query.RetryOption
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Client == nil:
		return nil, ledgererr.New(ledgererr.CodeConfigValidateInvalidValue, "ledger service requires a remote client")
	case cfg.Cache == nil:
		return nil, ledgererr.New(ledgererr.CodeConfigValidateInvalidValue, "ledger service requires a cache")
	case cfg.Flags == nil:
		return nil, ledgererr.New(ledgererr.CodeConfigValidateInvalidValue, "ledger service requires error flags")
	}

	exec := remote.NewExecutor(cfg.Flags)
	s := &Service{
		client:  cfg.Client,
		cache:   cfg.Cache,
		flags:   cfg.Flags,
		exec:    exec,
		wrapper: query.NewWrapper(cfg.Cache, exec, query.WithCoalescing(cfg.Coalesce)),
		monitor: cfg.Monitor,
	}
	if cfg.Retry.MaxAttempts != 0 {
		s.retryOpts = append(s.retryOpts, query.WithMaxAttempts(cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.InitialDelay > 0 {
		s.retryOpts = append(s.retryOpts, query.WithInitialDelay(cfg.Retry.InitialDelay))
	}
	s.retryOpts = append(s.retryOpts, cfg.RetryOptions...)
	return s, nil
}

// Executor returns the executor shared by every remote call of the service.
func (s *Service) Executor() *remote.Executor { return s.exec }

// Monitor returns the connection monitor, or nil.
func (s *Service) Monitor() *monitor.Monitor { return s.monitor }

// SafeQuery runs fn cache-first for the user in ctx (see query.WithUser).
func SafeQuery[T any](ctx context.Context, s *Service, kind types.EntityKind, fn func(context.Context) (T, error), opts ...query.SafeOption[T]) query.Result[T] {
	return query.Safe(ctx, s.wrapper, kind, fn, opts...)
}

// RetryQuery is SafeQuery under the retry controller. Extra retry options
// override the service defaults.
func RetryQuery[T any](ctx context.Context, s *Service, kind types.EntityKind, fn func(context.Context) (T, error), retry []query.RetryOption, opts ...query.SafeOption[T]) query.Result[T] {
	all := append(append([]query.RetryOption{}, s.retryOpts...), retry...)
	return query.Retry(ctx, func(ctx context.Context) query.Result[T] {
		return query.Safe(ctx, s.wrapper, kind, fn, opts...)
	}, all...)
}

// CheckDatabaseHealth probes the remote store and returns the monitor status.
func (s *Service) CheckDatabaseHealth(ctx context.Context) health.Status {
	if s.monitor == nil {
		return health.Status{State: health.StateUnknown}
	}
	s.monitor.Probe(ctx)
	return s.monitor.Status(ctx)
}

// ClearUserCache removes every cached entity of one user.
func (s *Service) ClearUserCache(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, ledgererr.New(ledgererr.CodeQueryUserMissing, "user id is required")
	}
	n, err := s.cache.PurgeUser(ctx, userID)
	slog.Info("cleared user cache", "user_id", userID, "removed", n)
	return n, err
}

// PurgeAllCaches removes every cached entity of every user and lowers the
// error flags. Unrelated keys are left alone.
func (s *Service) PurgeAllCaches(ctx context.Context) (int, error) {
	n, purgeErr := s.cache.PurgeAll(ctx)
	flagErr := s.flags.ClearErrors(ctx)
	slog.Info("purged all caches", "removed", n)
	if err := errors.Join(purgeErr, flagErr); err != nil {
		return n, ledgererr.Wrap(err, ledgererr.CodeCachePurgeFailure, "purging caches")
	}
	return n, nil
}

// GetCacheStats reports the cache footprint.
func (s *Service) GetCacheStats(ctx context.Context) (cache.Stats, error) {
	return s.cache.Stats(ctx)
}

// invalidate drops one cached entity so the next read goes remote.
func (s *Service) invalidate(ctx context.Context, key types.CacheKey) {
	if _, err := s.cache.Purge(ctx, func(k types.CacheKey) bool { return k == key }); err != nil {
		slog.Warn("cache invalidation failed", "key", key.String(), "error", err)
	}
}
