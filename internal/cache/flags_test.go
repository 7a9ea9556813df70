// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache_test

import (
	"context"
	"testing"

	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlags_SetAndClear(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	f := cache.NewFlags(kv)

	assert.Empty(t, f.Active(ctx))

	require.NoError(t, f.Set(ctx, cache.FlagSchemaError))
	require.NoError(t, f.Set(ctx, cache.FlagNetworkError))
	assert.True(t, f.Has(ctx, cache.FlagSchemaError))
	assert.False(t, f.Has(ctx, cache.FlagAuthError))
	assert.Equal(t, []cache.Flag{cache.FlagSchemaError, cache.FlagNetworkError}, f.Active(ctx))

	require.NoError(t, kv.Set(ctx, "theme", "dark"))
	require.NoError(t, f.ClearErrors(ctx))
	assert.Empty(t, f.Active(ctx))

	_, ok, err := kv.Get(ctx, "theme")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFlags_ConnectionStatus(t *testing.T) {
	ctx := context.Background()
	f := cache.NewFlags(store.NewMemoryKV())

	_, ok := f.ConnectionStatus(ctx)
	assert.False(t, ok)

	require.NoError(t, f.SetConnectionStatus(ctx, cache.StatusDisconnected))
	status, ok := f.ConnectionStatus(ctx)
	assert.True(t, ok)
	assert.Equal(t, cache.StatusDisconnected, status)

	require.NoError(t, f.Set(ctx, cache.FlagAuthError))
	require.NoError(t, f.Reset(ctx))
	_, ok = f.ConnectionStatus(ctx)
	assert.False(t, ok)
	assert.Empty(t, f.Active(ctx))
}
