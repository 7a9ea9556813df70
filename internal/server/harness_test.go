// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/ledger"
	"github.com/sigil-dev/ledger/internal/monitor"
	"github.com/sigil-dev/ledger/internal/query"
	"github.com/sigil-dev/ledger/internal/remote"
	"github.com/sigil-dev/ledger/internal/server"
	"github.com/sigil-dev/ledger/internal/store"
	"github.com/stretchr/testify/require"
)

// rowsClient serves rows per table and records writes.
type rowsClient struct {
	mu         sync.Mutex
	rows       map[string][]map[string]any
	err        error
	writes     []remote.Request
	reconnects int
}

func (c *rowsClient) Do(_ context.Context, req remote.Request) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if req.Op != remote.OpSelect {
		c.writes = append(c.writes, req)
		return json.Marshal([]any{req.Body})
	}
	var out []map[string]any
	for _, row := range c.rows[req.Table] {
		if req.Filter == nil || fmt.Sprint(row[req.Filter.Column]) == fmt.Sprint(req.Filter.Value) {
			out = append(out, row)
		}
	}
	if out == nil {
		return json.RawMessage(`[]`), nil
	}
	return json.Marshal(out)
}

func (c *rowsClient) Reconnect(context.Context) error {
	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()
	return nil
}

func (c *rowsClient) Close() error { return nil }

func (c *rowsClient) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

type harness struct {
	t      *testing.T
	client *rowsClient
	kv     *store.MemoryKV
	flags  *cache.Flags
	svc    *ledger.Service
	srv    *server.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		client: &rowsClient{rows: map[string][]map[string]any{}},
		kv:     store.NewMemoryKV(),
	}
	h.flags = cache.NewFlags(h.kv)
	noSleep := query.WithSleeper(func(context.Context, time.Duration) error { return nil })

	mon, err := monitor.New(monitor.Config{
		Client:   h.client,
		Executor: remote.NewExecutor(h.flags),
		Flags:    h.flags,
	})
	require.NoError(t, err)
	mon.SetRetryOptions(noSleep)

	h.svc, err = ledger.New(ledger.Config{
		Client:       h.client,
		Cache:        cache.New(h.kv),
		Flags:        h.flags,
		Monitor:      mon,
		RetryOptions: []query.RetryOption{noSleep},
	})
	require.NoError(t, err)

	h.srv, err = server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	h.srv.RegisterLedger(h.svc)
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func (h *harness) decode(w *httptest.ResponseRecorder, v any) {
	h.t.Helper()
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// stripSchema drops the "$schema" link huma adds to object responses.
func stripSchema(t *testing.T, body []byte) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	delete(m, "$schema")
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return string(out)
}
