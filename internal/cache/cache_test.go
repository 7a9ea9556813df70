// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/store"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*cache.Store, *store.MemoryKV, *time.Time) {
	t.Helper()
	kv := store.NewMemoryKV()
	c := cache.New(kv)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.SetNowFunc(func() time.Time { return now })
	return c, kv, &now
}

func mustKey(t *testing.T, kind types.EntityKind, id uuid.UUID) types.CacheKey {
	t.Helper()
	key, err := types.NewCacheKey(kind, id)
	require.NoError(t, err)
	return key
}

func TestStore_GetAfterPutIsFresh(t *testing.T) {
	ctx := context.Background()
	c, _, now := newTestCache(t)

	for _, kind := range types.AllKinds() {
		key := mustKey(t, kind, uuid.New())
		payload := map[string]any{"kind": string(kind), "value": 42}

		writtenAt, err := c.Put(ctx, key, payload)
		require.NoError(t, err)
		assert.Equal(t, now.UnixMilli(), writtenAt.UnixMilli())

		entry, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, c.IsFresh(entry))
		assert.Equal(t, cache.SourceRemote, entry.Source)

		want, _ := json.Marshal(payload)
		assert.JSONEq(t, string(want), string(entry.Payload))
	}
}

func TestStore_FreshnessBoundary(t *testing.T) {
	ctx := context.Background()
	c, _, now := newTestCache(t)
	key := mustKey(t, types.KindAssets, uuid.New())

	_, err := c.Put(ctx, key, []string{"house"})
	require.NoError(t, err)
	entry, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	tests := []struct {
		name      string
		elapsed   time.Duration
		wantFresh bool
	}{
		{name: "just written", elapsed: 0, wantFresh: true},
		{name: "before ttl", elapsed: cache.TTL - time.Second, wantFresh: true},
		{name: "at ttl", elapsed: cache.TTL, wantFresh: false},
		{name: "after ttl", elapsed: cache.TTL + time.Minute, wantFresh: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.SetNowFunc(func() time.Time { return now.Add(tt.elapsed) })
			assert.Equal(t, tt.wantFresh, c.IsFresh(entry))
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	c, _, _ := newTestCache(t)
	_, ok, err := c.Get(context.Background(), mustKey(t, types.KindIncome, uuid.New()))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CorruptPayloadIsAbsentAndKept(t *testing.T) {
	ctx := context.Background()
	c, kv, _ := newTestCache(t)
	key := mustKey(t, types.KindExpenses, uuid.New())
	require.NoError(t, kv.Set(ctx, key.String(), "{not json"))

	_, ok, err := c.Get(ctx, key)
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, ledgererr.HasCode(err, ledgererr.CodeCacheEntryParseError))

	raw, present, kvErr := kv.Get(ctx, key.String())
	require.NoError(t, kvErr)
	assert.True(t, present, "corrupt entry must not be auto-deleted")
	assert.Equal(t, "{not json", raw)
}

func TestStore_MissingMetadataIsStale(t *testing.T) {
	ctx := context.Background()
	c, kv, _ := newTestCache(t)
	key := mustKey(t, types.KindLiabilities, uuid.New())
	require.NoError(t, kv.Set(ctx, key.String(), `[]`))

	entry, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, entry.WrittenAt.IsZero())
	assert.False(t, c.IsFresh(entry))
}

func TestStore_PutIsOverwrite(t *testing.T) {
	ctx := context.Background()
	c, kv, _ := newTestCache(t)
	key := mustKey(t, types.KindAssets, uuid.New())

	for i := 0; i < 3; i++ {
		_, err := c.Put(ctx, key, []string{"house", "car"})
		require.NoError(t, err)
	}

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{key.String(), key.MetaKey()}, keys)

	raw, _, err := kv.Get(ctx, key.String())
	require.NoError(t, err)
	assert.Equal(t, `["house","car"]`, raw)
}

func TestStore_PurgeAllLeavesUnrelatedKeys(t *testing.T) {
	ctx := context.Background()
	c, kv, _ := newTestCache(t)
	user := uuid.New()

	for _, kind := range types.AllKinds() {
		_, err := c.Put(ctx, mustKey(t, kind, user), map[string]string{"k": string(kind)})
		require.NoError(t, err)
	}
	require.NoError(t, kv.Set(ctx, "theme", "dark"))
	require.NoError(t, kv.Set(ctx, "chat_history_"+user.String(), "[]"))

	removed, err := c.PurgeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(types.AllKinds()), removed)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"theme", "chat_history_" + user.String()}, keys)
}

func TestStore_PurgeUser(t *testing.T) {
	ctx := context.Background()
	c, kv, _ := newTestCache(t)
	alice, bob := uuid.New(), uuid.New()

	_, err := c.Put(ctx, mustKey(t, types.KindAssets, alice), []int{1})
	require.NoError(t, err)
	_, err = c.Put(ctx, mustKey(t, types.KindIncome, alice), []int{2})
	require.NoError(t, err)
	_, err = c.Put(ctx, mustKey(t, types.KindAssets, bob), []int{3})
	require.NoError(t, err)
	// Orphaned metadata with no payload.
	require.NoError(t, kv.Set(ctx, mustKey(t, types.KindExpenses, alice).MetaKey(), `{"timestamp":1,"source":"remote"}`))

	removed, err := c.PurgeUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	bobKey := mustKey(t, types.KindAssets, bob)
	assert.ElementsMatch(t, []string{bobKey.String(), bobKey.MetaKey()}, keys)
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	c, kv, now := newTestCache(t)
	user := uuid.New()

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.EntryCount)
	assert.Nil(t, st.OldestWrittenAt)

	_, err = c.Put(ctx, mustKey(t, types.KindAssets, user), []int{1})
	require.NoError(t, err)
	later := now.Add(time.Hour)
	c.SetNowFunc(func() time.Time { return later })
	_, err = c.Put(ctx, mustKey(t, types.KindIncome, user), []int{2})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "unrelated", "xxxxxxxxxxxxxxxx"))

	st, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.EntryCount)
	require.NotNil(t, st.OldestWrittenAt)
	assert.Equal(t, now.UnixMilli(), st.OldestWrittenAt.UnixMilli())
	assert.Greater(t, st.SizeBytes, int64(0))

	var want int64
	keys, _ := kv.Keys(ctx)
	for _, k := range keys {
		if k == "unrelated" {
			continue
		}
		v, _, _ := kv.Get(ctx, k)
		want += int64(len(k) + len(v))
	}
	assert.Equal(t, want, st.SizeBytes)
}

func TestStore_GetNeverMixesPayloadAndMetadata(t *testing.T) {
	ctx := context.Background()
	c := cache.New(store.NewMemoryKV())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	c.SetNowFunc(func() time.Time { return base.Add(time.Duration(tick.Load()) * time.Millisecond) })
	key := mustKey(t, types.KindAssets, uuid.New())

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			entry, ok, _ := c.Get(ctx, key)
			if !ok || entry.WrittenAt.IsZero() {
				continue
			}
			var payload struct {
				N int64 `json:"n"`
			}
			if assert.NoError(t, json.Unmarshal(entry.Payload, &payload)) {
				assert.Equal(t, base.Add(time.Duration(payload.N)*time.Millisecond), entry.WrittenAt.UTC())
			}
		}
	}()

	for i := int64(1); i <= 300; i++ {
		tick.Store(i)
		_, err := c.Put(ctx, key, map[string]int64{"n": i})
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()
}
