// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sync"

	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// Factory creates a KV backend from storage configuration.
type Factory func(cfg *StorageConfig) (KV, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

func init() {
	RegisterBackend("memory", func(*StorageConfig) (KV, error) { return NewMemoryKV(), nil })
}

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// resolveBackend returns the effective backend name, defaulting to "memory".
func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return "memory"
	}
	return cfg.Backend
}

// NewKV creates the configured backend.
func NewKV(cfg *StorageConfig) (KV, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, ledgererr.Errorf(ledgererr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	if cfg == nil {
		cfg = &StorageConfig{}
	}
	return factory(cfg)
}
