// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package remote

import (
	"context"
	"sync"
	"time"

	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// Config selects and configures the remote backend.
type Config struct {
	Backend     string // "rest" or "postgres"
	URL         string
	APIKey      string
	DatabaseURL string
	MaxConns    int
	Timeout     time.Duration
	Tokens      TokenSource // optional bearer source for the rest backend
}

// Factory opens a Client for a backend.
type Factory func(ctx context.Context, cfg *Config) (Client, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Factory{}
)

// RegisterBackend makes a backend available to New. Backends register
// themselves from init.
func RegisterBackend(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

// New opens the configured backend. An empty backend selects "rest".
func New(ctx context.Context, cfg *Config) (Client, error) {
	if cfg == nil {
		return nil, ledgererr.New(ledgererr.CodeRemoteRequestInvalid, "remote config is required")
	}
	name := cfg.Backend
	if name == "" {
		name = "rest"
	}

	backendsMu.RLock()
	f, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, ledgererr.New(ledgererr.CodeRemoteBackendUnsupported, "unsupported remote backend",
			ledgererr.Field("backend", name))
	}
	return f(ctx, cfg)
}
