// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/remote"
	"github.com/sigil-dev/ledger/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entityResponse struct {
	Kind      string `json:"kind"`
	Data      any    `json:"data"`
	Success   bool   `json:"success"`
	UsedCache bool   `json:"used_cache"`
	ErrorKind string `json:"error_kind"`
	Error     string `json:"error"`
}

func TestRoutes_GetEntityCacheFirst(t *testing.T) {
	h := newHarness(t)
	user := uuid.New()
	h.client.rows["assets"] = []map[string]any{
		{"user_id": user.String(), "name": "cash", "value": "10"},
	}
	path := "/api/v1/users/" + user.String() + "/assets"

	w := h.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first entityResponse
	h.decode(w, &first)
	assert.Equal(t, "assets", first.Kind)
	assert.True(t, first.Success)
	assert.False(t, first.UsedCache)
	assert.Len(t, first.Data, 1)

	h.client.setErr(errors.New("failed to fetch"))
	w = h.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	var second entityResponse
	h.decode(w, &second)
	assert.True(t, second.Success, "fresh cache hit does not touch the remote")
	assert.True(t, second.UsedCache)
}

func TestRoutes_GetEntityFailureFallsBack(t *testing.T) {
	h := newHarness(t)
	h.client.setErr(&remote.Error{Code: "PGRST106", Message: "The schema must be one of the following: api", Status: 406})

	w := h.do(http.MethodGet, "/api/v1/users/"+uuid.NewString()+"/personal-info?retry=true", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res entityResponse
	h.decode(w, &res)
	assert.Equal(t, "personal_info", res.Kind)
	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Equal(t, string(remote.KindSchema), res.ErrorKind)
	assert.NotEmpty(t, res.Error)
	assert.True(t, h.flags.Has(t.Context(), cache.FlagSchemaError))
}

func TestRoutes_BadPathParameters(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/users/not-a-uuid/assets", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/users/"+uuid.Nil.String()+"/assets", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/users/"+uuid.NewString()+"/crypto", "").Code)
}

func TestRoutes_UnknownKindIsNotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/v1/users/"+uuid.NewString()+"/crypto", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown entity kind")

	rec = h.do(http.MethodPut, "/api/v1/users/"+uuid.NewString()+"/crypto", `{"amount":"1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_PutEntity(t *testing.T) {
	h := newHarness(t)
	user := uuid.New()
	path := "/api/v1/users/" + user.String() + "/income"

	w := h.do(http.MethodPut, path, `{"source":"salary","amount":"4000","frequency":"monthly"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, h.client.writes, 1)
	assert.Equal(t, remote.OpInsert, h.client.writes[0].Op)
	assert.Equal(t, "income", h.client.writes[0].Table)

	w = h.do(http.MethodPut, path, `{"source":"salary","amount":"-1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(http.MethodPut, path, `{"source":"salary","amount":"1","frequency":"hourly"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	h.client.setErr(errors.New("connection refused"))
	w = h.do(http.MethodPut, path, `{"source":"salary","amount":"1"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRoutes_Summary(t *testing.T) {
	h := newHarness(t)
	user := uuid.New()
	h.client.rows["income"] = []map[string]any{{"user_id": user.String(), "source": "job", "amount": "1000"}}
	h.client.rows["expenses"] = []map[string]any{{"user_id": user.String(), "category": "food", "amount": "250"}}

	w := h.do(http.MethodGet, "/api/v1/users/"+user.String()+"/summary", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	h.decode(w, &body)
	assert.Equal(t, "1000", body["monthly_income"])
	assert.Equal(t, "750", body["monthly_cash_flow"])
	assert.Equal(t, false, body["degraded"])
}

func TestRoutes_CacheMaintenance(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{alice, bob} {
		require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/users/"+u.String()+"/assets", "").Code)
	}
	require.NoError(t, h.kv.Set(t.Context(), "theme", "dark"))

	var stats cache.Stats
	h.decode(h.do(http.MethodGet, "/api/v1/cache/stats", ""), &stats)
	assert.Equal(t, 2, stats.EntryCount)

	var removed struct {
		Removed int `json:"removed"`
	}
	w := h.do(http.MethodDelete, "/api/v1/users/"+alice.String()+"/cache", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	h.decode(w, &removed)
	assert.Equal(t, 1, removed.Removed)

	require.NoError(t, h.flags.Set(t.Context(), cache.FlagNetworkError))
	w = h.do(http.MethodDelete, "/api/v1/cache", "")
	require.Equal(t, http.StatusOK, w.Code)
	h.decode(w, &removed)
	assert.Equal(t, 1, removed.Removed)
	assert.Empty(t, h.flags.Active(t.Context()))

	_, ok, err := h.kv.Get(t.Context(), "theme")
	require.NoError(t, err)
	assert.True(t, ok, "unrelated keys survive a purge")
}

func TestRoutes_StatusLifecycle(t *testing.T) {
	h := newHarness(t)

	var st health.Status
	h.decode(h.do(http.MethodGet, "/api/v1/status", ""), &st)
	assert.Equal(t, health.StateUnknown, st.State)

	h.client.setErr(&remote.Error{Status: 401, Message: "JWT expired"})
	h.decode(h.do(http.MethodPost, "/api/v1/status/probe", ""), &st)
	assert.Equal(t, health.StateUnhealthy, st.State)
	assert.Equal(t, string(remote.KindAuth), st.LastErrorKind)

	var rec struct {
		Recovered bool          `json:"recovered"`
		Status    health.Status `json:"status"`
	}
	h.decode(h.do(http.MethodPost, "/api/v1/status/retry?max_attempts=2", ""), &rec)
	assert.False(t, rec.Recovered)
	assert.EqualValues(t, 1, rec.Status.TotalRetries)

	h.client.setErr(nil)
	h.decode(h.do(http.MethodPost, "/api/v1/status/reset", ""), &rec)
	assert.True(t, rec.Recovered)
	assert.EqualValues(t, 1, rec.Status.ResetCount)
	assert.Equal(t, 1, h.client.reconnects)
	assert.Empty(t, rec.Status.Flags)

	h.decode(h.do(http.MethodPost, "/api/v1/status/retry", ""), &rec)
	assert.True(t, rec.Recovered)
	assert.Equal(t, health.StateHealthy, rec.Status.State)
}

func TestRoutes_RetryValidatesAttempts(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(http.MethodPost, "/api/v1/status/retry?max_attempts=0", "").Code)
}
