// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ledger_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/ledger"
	"github.com/sigil-dev/ledger/internal/monitor"
	"github.com/sigil-dev/ledger/internal/query"
	"github.com/sigil-dev/ledger/internal/remote"
	"github.com/sigil-dev/ledger/internal/store"
	"github.com/stretchr/testify/require"
)

// tableClient is an in-memory remote store keyed by table name.
type tableClient struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	err    error
	calls  int
}

func newTableClient() *tableClient {
	return &tableClient{tables: map[string][]map[string]any{}}
}

func (c *tableClient) seed(table string, rows ...map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[table] = append(c.tables[table], rows...)
}

func (c *tableClient) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *tableClient) Do(_ context.Context, req remote.Request) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}

	match := func(row map[string]any) bool {
		return req.Filter == nil || fmt.Sprint(row[req.Filter.Column]) == fmt.Sprint(req.Filter.Value)
	}
	var out []map[string]any
	switch req.Op {
	case remote.OpSelect:
		for _, row := range c.tables[req.Table] {
			if match(row) {
				out = append(out, row)
			}
			if req.Limit > 0 && len(out) == req.Limit {
				break
			}
		}
	case remote.OpInsert:
		row := req.Body.(map[string]any)
		c.tables[req.Table] = append(c.tables[req.Table], row)
		out = append(out, row)
	case remote.OpUpdate:
		patch := req.Body.(map[string]any)
		for _, row := range c.tables[req.Table] {
			if !match(row) {
				continue
			}
			for k, v := range patch {
				row[k] = v
			}
			out = append(out, row)
		}
	}
	if out == nil {
		out = []map[string]any{}
	}
	return json.Marshal(out)
}

func (c *tableClient) Reconnect(context.Context) error { return nil }
func (c *tableClient) Close() error { return nil }

func (c *tableClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	client *tableClient
	kv     *store.MemoryKV
	cache  *cache.Store
	flags  *cache.Flags
	svc    *ledger.Service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		client: newTableClient(),
		kv:     store.NewMemoryKV(),
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.cache = cache.New(f.kv)
	f.cache.SetNowFunc(func() time.Time { return f.now })
	f.flags = cache.NewFlags(f.kv)

	mon, err := monitor.New(monitor.Config{
		Client:   f.client,
		Executor: remote.NewExecutor(f.flags),
		Flags:    f.flags,
	})
	require.NoError(t, err)

	f.svc, err = ledger.New(ledger.Config{
		Client:  f.client,
		Cache:   f.cache,
		Flags:   f.flags,
		Monitor: mon,
		RetryOptions: []query.RetryOption{
			query.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		},
	})
	require.NoError(t, err)
	return f
}
