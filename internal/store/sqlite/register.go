// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/sigil-dev/ledger/internal/store"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", newKV)
}

func newKV(cfg *store.StorageConfig) (store.KV, error) {
	if cfg.Path == "" {
		return nil, ledgererr.New(ledgererr.CodeStoreInvalidInput, "sqlite backend requires a database path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, ledgererr.Wrapf(err, ledgererr.CodeStoreDatabaseFailure, "creating cache directory for %s", cfg.Path)
	}
	kv, err := NewKV(cfg.Path)
	if err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeStoreDatabaseFailure, "opening sqlite cache")
	}
	return kv, nil
}
