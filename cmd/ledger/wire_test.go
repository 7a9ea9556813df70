// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/config"
	"github.com/sigil-dev/ledger/pkg/health"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("cache.backend", "memory")
	v.Set("session.keyring_service", "ledger-test-"+uuid.NewString())
	for k, val := range overrides {
		v.Set(k, val)
	}
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	return cfg
}

// fakeRemote answers every table read with rows and counts requests.
func fakeRemote(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasPrefix(r.URL.Path, "/rest/v1/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestWireApp_ServesProbe(t *testing.T) {
	remoteSrv, calls := fakeRemote(t, http.StatusOK, `[]`)
	cfg := testConfig(t, map[string]any{"remote.url": remoteSrv.URL, "remote.api_key": "anon"})

	app, err := WireApp(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close()) })

	srv, err := app.NewServer()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/status/probe", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var st health.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, health.StateHealthy, st.State)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWireApp_ReadsThroughCache(t *testing.T) {
	remoteSrv, calls := fakeRemote(t, http.StatusOK, `[{"id":"a1","name":"Savings","value":"1200.00","liquid":true}]`)
	cfg := testConfig(t, map[string]any{"remote.url": remoteSrv.URL})

	app, err := WireApp(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	srv, err := app.NewServer()
	require.NoError(t, err)

	path := "/api/v1/users/" + uuid.NewString() + "/assets"
	for range 2 {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "Savings")
	}
	assert.Equal(t, int32(1), calls.Load(), "second read must come from the cache")
}

func TestWireApp_AuthFailureRaisesFlag(t *testing.T) {
	remoteSrv, _ := fakeRemote(t, http.StatusUnauthorized, `{"code":"PGRST301","message":"JWT expired"}`)
	cfg := testConfig(t, map[string]any{"remote.url": remoteSrv.URL})

	app, err := WireApp(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	st := app.Ledger.CheckDatabaseHealth(t.Context())
	assert.Equal(t, health.StateUnhealthy, st.State)
	assert.Equal(t, "auth_error", st.LastErrorKind)
	assert.Contains(t, st.Flags, "db_auth_error")
}

func TestWireApp_UnknownCacheBackend(t *testing.T) {
	cfg := testConfig(t, map[string]any{"remote.url": "https://project.example.com"})
	cfg.Cache.Backend = "leveldb"

	_, err := WireApp(t.Context(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leveldb")
}
