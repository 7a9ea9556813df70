// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/query"
	"github.com/sigil-dev/ledger/internal/remote"
	"github.com/sigil-dev/ledger/internal/store"
)

type fixture struct {
	kv      *store.MemoryKV
	cache   *cache.Store
	flags   *cache.Flags
	wrapper *query.Wrapper
	now     time.Time
	user    uuid.UUID
}

func newFixture(t *testing.T, opts ...query.WrapperOption) *fixture {
	t.Helper()
	f := &fixture{
		kv:   store.NewMemoryKV(),
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		user: uuid.New(),
	}
	f.cache = cache.New(f.kv)
	f.cache.SetNowFunc(func() time.Time { return f.now })
	f.flags = cache.NewFlags(f.kv)
	f.wrapper = query.NewWrapper(f.cache, remote.NewExecutor(f.flags), opts...)
	return f
}

func (f *fixture) ctx() context.Context {
	return query.WithUser(context.Background(), f.user)
}

// advance moves the cache clock forward.
func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

type counter struct {
	calls int
}

func (c *counter) ok(v []string) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) {
		c.calls++
		return v, nil
	}
}

func (c *counter) fail(err error) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) {
		c.calls++
		return nil, err
	}
}
