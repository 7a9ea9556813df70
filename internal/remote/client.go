// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package remote

import (
	"context"
	"encoding/json"
	"regexp"

	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// Op is the table operation a Request performs.
type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Filter restricts a request to rows where Column equals Value.
type Filter struct {
	Column string
	Value  any
}

// Request is one table query against the remote store.
type Request struct {
	Table  string
	Op     Op
	Filter *Filter
	Body   any // row to write; insert and update only
	Limit  int // 0 means no limit
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to use as a table or column name.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// Validate checks the request shape before it reaches a backend.
func (r Request) Validate() error {
	if !ValidIdentifier(r.Table) {
		return ledgererr.New(ledgererr.CodeRemoteRequestInvalid, "invalid table name", ledgererr.FieldTable(r.Table))
	}
	if r.Filter != nil && !ValidIdentifier(r.Filter.Column) {
		return ledgererr.New(ledgererr.CodeRemoteRequestInvalid, "invalid filter column",
			ledgererr.FieldTable(r.Table), ledgererr.Field("column", r.Filter.Column))
	}
	if r.Limit < 0 {
		return ledgererr.Errorf(ledgererr.CodeRemoteRequestInvalid, "negative limit %d", r.Limit)
	}
	switch r.Op {
	case OpSelect:
	case OpInsert, OpUpdate:
		if r.Body == nil {
			return ledgererr.New(ledgererr.CodeRemoteRequestInvalid, "write requires a body",
				ledgererr.FieldTable(r.Table), ledgererr.Field("op", string(r.Op)))
		}
		if r.Op == OpUpdate && r.Filter == nil {
			return ledgererr.New(ledgererr.CodeRemoteRequestInvalid, "update requires a filter", ledgererr.FieldTable(r.Table))
		}
	default:
		return ledgererr.Errorf(ledgererr.CodeRemoteRequestInvalid, "unsupported op %q", r.Op)
	}
	return nil
}

// Client is the remote table store. Do returns the affected rows as a JSON
// array.
type Client interface {
	Do(ctx context.Context, req Request) (json.RawMessage, error)
	// Reconnect drops and re-establishes the underlying connection.
	Reconnect(ctx context.Context) error
	Close() error
}

// TokenSource supplies the bearer credential for backends that need one.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// DecodeRows decodes a JSON array of rows.
func DecodeRows[T any](raw json.RawMessage) ([]T, error) {
	var rows []T
	if len(raw) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeRemoteResponseInvalid, "decoding rows")
	}
	return rows, nil
}

// DecodeFirst decodes the first row of a JSON array. ok is false when the
// array is empty.
func DecodeFirst[T any](raw json.RawMessage) (row T, ok bool, err error) {
	rows, err := DecodeRows[T](raw)
	if err != nil || len(rows) == 0 {
		return row, false, err
	}
	return rows[0], true, nil
}
