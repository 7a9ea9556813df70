// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/store"
	_ "github.com/sigil-dev/ledger/internal/store/sqlite"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedCache writes one assets and one expenses entry per user into a sqlite
// cache, raises the schema flag and stores an unrelated key. It returns the
// config path and the database path.
func seedCache(t *testing.T, users ...uuid.UUID) (cfgPath, dbPath string) {
	t.Helper()
	dbPath = filepath.Join(t.TempDir(), "cache.db")

	kv, err := store.NewKV(&store.StorageConfig{Backend: "sqlite", Path: dbPath})
	require.NoError(t, err)
	defer func() { require.NoError(t, kv.Close()) }()

	ctx := context.Background()
	c := cache.New(kv)
	for _, u := range users {
		for _, kind := range []types.EntityKind{types.KindAssets, types.KindExpenses} {
			key, err := types.NewCacheKey(kind, u)
			require.NoError(t, err)
			_, err = c.Put(ctx, key, []map[string]any{{"name": "row"}})
			require.NoError(t, err)
		}
	}
	require.NoError(t, cache.NewFlags(kv).Set(ctx, cache.FlagSchemaError))
	require.NoError(t, kv.Set(ctx, "theme", "dark"))

	return writeTestConfig(t, fmt.Sprintf("cache:\n  backend: sqlite\n  path: %q\n", dbPath)), dbPath
}

func TestCacheStats(t *testing.T) {
	cfgPath, _ := seedCache(t, uuid.New(), uuid.New())
	root, buf := newTestRoot(t, "cache", "stats", "--config", cfgPath)

	require.NoError(t, root.Execute())
	assert.Regexp(t, `Entries:\s+4\n`, buf.String())
	assert.Contains(t, buf.String(), "Oldest entry:")
}

func TestCacheClear(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	cfgPath, _ := seedCache(t, alice, bob)

	root, buf := newTestRoot(t, "cache", "clear", alice.String(), "--config", cfgPath)
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "Removed 2 cached entries for "+alice.String())

	root, buf = newTestRoot(t, "cache", "stats", "--config", cfgPath)
	require.NoError(t, root.Execute())
	assert.Regexp(t, `Entries:\s+2\n`, buf.String())
}

func TestCacheClear_RejectsBadUser(t *testing.T) {
	for _, arg := range []string{"not-a-uuid", uuid.Nil.String()} {
		root, _ := newTestRoot(t, "cache", "clear", arg)
		err := root.Execute()
		require.Error(t, err, arg)
		assert.True(t, ledgererr.HasCode(err, ledgererr.CodeCLIInputInvalid), arg)
	}
}

func TestCachePurge(t *testing.T) {
	cfgPath, dbPath := seedCache(t, uuid.New(), uuid.New())

	root, buf := newTestRoot(t, "cache", "purge", "--config", cfgPath)
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "Removed 4 cached entries")

	kv, err := store.NewKV(&store.StorageConfig{Backend: "sqlite", Path: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	ctx := context.Background()
	theme, ok, err := kv.Get(ctx, "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", theme)
	assert.False(t, cache.NewFlags(kv).Has(ctx, cache.FlagSchemaError))
}
