// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sigil-dev/ledger/internal/remote"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate_PgErrorClassifies(t *testing.T) {
	tests := []struct {
		name string
		pg   *pgconn.PgError
		want remote.ErrorKind
	}{
		{name: "undefined table", pg: &pgconn.PgError{Code: "42P01", Message: `relation "assets" does not exist`}, want: remote.KindSchema},
		{name: "invalid schema", pg: &pgconn.PgError{Code: "3F000", Message: `schema "app" does not exist`}, want: remote.KindSchema},
		{name: "insufficient privilege", pg: &pgconn.PgError{Code: "42501", Message: "permission denied"}, want: remote.KindAuth},
		{name: "bad password", pg: &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, want: remote.KindAuth},
		{name: "unique violation", pg: &pgconn.PgError{Code: "23505", Message: "duplicate key value"}, want: remote.KindConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translate(fmt.Errorf("query: %w", tt.pg))

			var re *remote.Error
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.pg.Code, re.Code)
			assert.Equal(t, tt.pg.Message, re.Message)

			kind, outage := remote.Classify(err)
			assert.Equal(t, tt.want, kind)
			assert.False(t, outage)
		})
	}
}

func TestTranslate_PassesThroughOtherErrors(t *testing.T) {
	assert.NoError(t, translate(nil))

	plain := errors.New("dial tcp: connection refused")
	assert.Same(t, plain, translate(plain))
}

func TestToRow(t *testing.T) {
	m := map[string]any{"user_id": "u1"}
	row, err := toRow(m)
	require.NoError(t, err)
	assert.Equal(t, m, row)

	type asset struct {
		UserID string  `json:"user_id"`
		Value  float64 `json:"value"`
	}
	row, err = toRow(asset{UserID: "u1", Value: 10})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user_id": "u1", "value": 10.0}, row)

	_, err = toRow([]int{1, 2})
	assert.True(t, ledgererr.HasCode(err, ledgererr.CodeRemoteRequestInvalid))
}

func TestConnect_RequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), "", 4)
	require.Error(t, err)
	assert.True(t, ledgererr.HasCode(err, ledgererr.CodeRemoteRequestInvalid))
}

func TestClient_ClosedAndInvalid(t *testing.T) {
	c := &Client{}
	ctx := context.Background()

	_, err := c.Do(ctx, remote.Request{Table: "assets", Op: remote.OpSelect})
	assert.True(t, ledgererr.HasCode(err, ledgererr.CodeRemoteConnectFailure))

	_, err = c.Do(ctx, remote.Request{Table: "bad table", Op: remote.OpSelect})
	assert.True(t, ledgererr.HasCode(err, ledgererr.CodeRemoteRequestInvalid))

	assert.NoError(t, c.Close())
	assert.Error(t, c.Reconnect(ctx))
}
