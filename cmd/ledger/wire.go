// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/config"
	"github.com/sigil-dev/ledger/internal/ledger"
	"github.com/sigil-dev/ledger/internal/monitor"
	"github.com/sigil-dev/ledger/internal/remote"
	_ "github.com/sigil-dev/ledger/internal/remote/postgres" // register postgres backend
	"github.com/sigil-dev/ledger/internal/remote/rest"
	"github.com/sigil-dev/ledger/internal/server"
	"github.com/sigil-dev/ledger/internal/session"
	"github.com/sigil-dev/ledger/internal/store"
	_ "github.com/sigil-dev/ledger/internal/store/redis"  // register redis backend
	_ "github.com/sigil-dev/ledger/internal/store/sqlite" // register sqlite backend
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Config  *config.Config
	KV      store.KV
	Cache   *cache.Store
	Flags   *cache.Flags
	Remote  remote.Client
	Session *session.Store
	Monitor *monitor.Monitor
	Ledger  *ledger.Service
}

// openKV opens the configured cache backend. Cache maintenance commands use
// it without touching the remote store.
func openKV(cfg *config.Config) (store.KV, error) {
	sc, err := cfg.StorageConfig()
	if err != nil {
		return nil, err
	}
	kv, err := store.NewKV(sc)
	if err != nil {
		return nil, ledgererr.Errorf(ledgererr.CodeCLISetupFailure, "opening %s cache: %w", sc.Backend, err)
	}
	return kv, nil
}

// newSessionStore returns the keyring-backed session, refreshed through the
// rest auth endpoint when a remote url is configured.
func newSessionStore(cfg *config.Config) *session.Store {
	sess := session.NewStore(cfg.Session.KeyringService)
	if cfg.Remote.Backend == "rest" && cfg.Remote.URL != "" {
		sess.SetRefresher(rest.NewAuth(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Remote.Timeout))
	}
	return sess
}

// WireApp creates all subsystems and wires them together.
func WireApp(ctx context.Context, cfg *config.Config) (*App, error) {
	kv, err := openKV(cfg)
	if err != nil {
		return nil, err
	}

	sess := newSessionStore(cfg)

	var tokens remote.TokenSource
	if cfg.Remote.Backend == "rest" {
		tokens = sess
	}
	client, err := remote.New(ctx, cfg.RemoteConfig(tokens))
	if err != nil {
		_ = kv.Close()
		return nil, ledgererr.Errorf(ledgererr.CodeCLISetupFailure, "connecting to %s remote (run 'ledger init' to configure): %w", cfg.Remote.Backend, err)
	}

	flags := cache.NewFlags(kv)
	mon, err := monitor.New(monitor.Config{
		Client:     client,
		Executor:   remote.NewExecutor(flags),
		Flags:      flags,
		Session:    sess,
		ProbeTable: cfg.Remote.ProbeTable,
		OnReset: func(context.Context) {
			slog.Info("connection reset complete, cached records retained")
		},
	})
	if err != nil {
		_ = client.Close()
		_ = kv.Close()
		return nil, ledgererr.Errorf(ledgererr.CodeCLISetupFailure, "creating connection monitor: %w", err)
	}

	c := cache.New(kv)
	svc, err := ledger.New(ledger.Config{
		Client:   client,
		Cache:    c,
		Flags:    flags,
		Monitor:  mon,
		Coalesce: cfg.Query.Coalesce,
		Retry: ledger.RetryConfig{
			MaxAttempts:  cfg.Query.Retry.MaxAttempts,
			InitialDelay: cfg.Query.Retry.InitialDelay,
		},
	})
	if err != nil {
		_ = client.Close()
		_ = kv.Close()
		return nil, ledgererr.Errorf(ledgererr.CodeCLISetupFailure, "creating ledger service: %w", err)
	}

	slog.Debug("wired ledger",
		"remote", cfg.Remote.Backend,
		"cache", cfg.Cache.Backend,
		"coalesce", cfg.Query.Coalesce,
	)

	return &App{
		Config:  cfg,
		KV:      kv,
		Cache:   c,
		Flags:   flags,
		Remote:  client,
		Session: sess,
		Monitor: mon,
		Ledger:  svc,
	}, nil
}

// NewServer builds the HTTP API for the app.
func (a *App) NewServer() (*server.Server, error) {
	srv, err := server.New(server.Config{
		ListenAddr:  a.Config.Networking.Listen,
		CORSOrigins: a.Config.Networking.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: a.Config.Networking.RateLimitRPS,
			Burst:             a.Config.Networking.RateLimitBurst,
		},
	})
	if err != nil {
		return nil, err
	}
	srv.RegisterLedger(a.Ledger)
	return srv, nil
}

// Close releases the remote connection and the cache.
func (a *App) Close() error {
	var errs []error
	if a.Remote != nil {
		errs = append(errs, a.Remote.Close())
	}
	if a.KV != nil {
		errs = append(errs, a.KV.Close())
	}
	return errors.Join(errs...)
}
