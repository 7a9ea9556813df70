// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ledger

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/finance"
	"github.com/sigil-dev/ledger/internal/query"
	"github.com/sigil-dev/ledger/internal/remote"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/types"
)

const userColumn = "user_id"

func selectRequest(kind types.EntityKind, userID uuid.UUID) remote.Request {
	req := remote.Request{
		Table:  kind.Table(),
		Op:     remote.OpSelect,
		Filter: &remote.Filter{Column: userColumn, Value: userID.String()},
	}
	if kind.Singular() {
		req.Limit = 1
	}
	return req
}

// fetch returns a query function that reads kind for userID and decodes it
// with decode.
func fetch[T any](s *Service, kind types.EntityKind, userID uuid.UUID, decode func(json.RawMessage) (T, error)) func(context.Context) (T, error) {
	req := selectRequest(kind, userID)
	return func(ctx context.Context) (T, error) {
		var zero T
		if err := req.Validate(); err != nil {
			return zero, err
		}
		raw, err := s.client.Do(ctx, req)
		if err != nil {
			return zero, err
		}
		return decode(raw)
	}
}

func load[T any](ctx context.Context, s *Service, userID uuid.UUID, kind types.EntityKind, retry bool, decode func(json.RawMessage) (T, error), opts ...query.SafeOption[T]) query.Result[T] {
	ctx = query.WithUser(ctx, userID)
	fn := fetch(s, kind, userID, decode)
	if retry {
		return RetryQuery(ctx, s, kind, fn, nil, opts...)
	}
	return SafeQuery(ctx, s, kind, fn, opts...)
}

func rows[T any](raw json.RawMessage) ([]T, error) {
	out, err := remote.DecodeRows[T](raw)
	if out == nil {
		out = []T{}
	}
	return out, err
}

func first[T any](raw json.RawMessage) (*T, error) {
	row, ok, err := remote.DecodeFirst[T](raw)
	if err != nil || !ok {
		return nil, err
	}
	return &row, nil
}

// Raw reads any kind as the remote store's JSON. Singular kinds yield an
// object or null, list kinds an array.
func (s *Service) Raw(ctx context.Context, userID uuid.UUID, kind types.EntityKind, retry bool) query.Result[json.RawMessage] {
	decode := func(raw json.RawMessage) (json.RawMessage, error) { return raw, nil }
	fallback := json.RawMessage(`[]`)
	if kind.Singular() {
		decode = func(raw json.RawMessage) (json.RawMessage, error) {
			row, err := first[json.RawMessage](raw)
			if err != nil || row == nil {
				return json.RawMessage(`null`), err
			}
			return *row, nil
		}
		fallback = json.RawMessage(`null`)
	}
	return load(ctx, s, userID, kind, retry, decode, query.WithFallback(fallback))
}

func (s *Service) PersonalInfo(ctx context.Context, userID uuid.UUID, retry bool) query.Result[*finance.PersonalInfo] {
	return load(ctx, s, userID, types.KindPersonalInfo, retry, first[finance.PersonalInfo])
}

func (s *Service) BusinessInfo(ctx context.Context, userID uuid.UUID, retry bool) query.Result[*finance.BusinessInfo] {
	return load(ctx, s, userID, types.KindBusinessInfo, retry, first[finance.BusinessInfo])
}

func (s *Service) Assets(ctx context.Context, userID uuid.UUID, retry bool) query.Result[[]finance.Asset] {
	return load(ctx, s, userID, types.KindAssets, retry, rows[finance.Asset], query.WithFallback([]finance.Asset{}))
}

func (s *Service) Liabilities(ctx context.Context, userID uuid.UUID, retry bool) query.Result[[]finance.Liability] {
	return load(ctx, s, userID, types.KindLiabilities, retry, rows[finance.Liability], query.WithFallback([]finance.Liability{}))
}

func (s *Service) Income(ctx context.Context, userID uuid.UUID, retry bool) query.Result[[]finance.Income] {
	return load(ctx, s, userID, types.KindIncome, retry, rows[finance.Income], query.WithFallback([]finance.Income{}))
}

func (s *Service) Expenses(ctx context.Context, userID uuid.UUID, retry bool) query.Result[[]finance.Expense] {
	return load(ctx, s, userID, types.KindExpenses, retry, rows[finance.Expense], query.WithFallback([]finance.Expense{}))
}

// SummaryResult is a computed summary plus how trustworthy its inputs were.
type SummaryResult struct {
	finance.Summary
	// Degraded is true when any input was served from cache after a failure
	// or fell back to an empty list.
	Degraded bool               `json:"degraded"`
	Failed   []types.EntityKind `json:"failed,omitempty"`
}

// Summary loads the four list kinds and computes the financial ratios.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID) SummaryResult {
	assets := s.Assets(ctx, userID, false)
	liabilities := s.Liabilities(ctx, userID, false)
	income := s.Income(ctx, userID, false)
	expenses := s.Expenses(ctx, userID, false)

	res := SummaryResult{Summary: finance.Summarize(finance.Snapshot{
		Assets:      assets.Data,
		Liabilities: liabilities.Data,
		Income:      income.Data,
		Expenses:    expenses.Data,
	})}
	for _, in := range []struct {
		kind types.EntityKind
		ok   bool
	}{
		{types.KindAssets, assets.Success},
		{types.KindLiabilities, liabilities.Success},
		{types.KindIncome, income.Success},
		{types.KindExpenses, expenses.Success},
	} {
		if !in.ok {
			res.Failed = append(res.Failed, in.kind)
		}
	}
	res.Degraded = len(res.Failed) > 0
	return res
}

// Save writes one record of kind for userID. Singular kinds are updated in
// place when a record exists and inserted otherwise; list kinds always
// insert. The user's cached copy of kind is invalidated on success.
func (s *Service) Save(ctx context.Context, userID uuid.UUID, kind types.EntityKind, body json.RawMessage) (json.RawMessage, error) {
	key, err := types.NewCacheKey(kind, userID)
	if err != nil {
		return nil, err
	}
	row, err := validateBody(kind, body)
	if err != nil {
		return nil, err
	}
	row[userColumn] = userID.String()

	req := remote.Request{Table: kind.Table(), Op: remote.OpInsert, Body: row}
	if kind.Singular() {
		existing := remote.Do(ctx, s.exec, s.client, selectRequest(kind, userID))
		if !existing.OK() {
			return nil, existing.Failure
		}
		if found, _ := first[json.RawMessage](existing.Data); found != nil {
			req.Op = remote.OpUpdate
			req.Filter = &remote.Filter{Column: userColumn, Value: userID.String()}
		}
	}

	out := remote.Do(ctx, s.exec, s.client, req)
	if !out.OK() {
		return nil, out.Failure
	}
	s.invalidate(ctx, key)
	return out.Data, nil
}

type validator interface {
	Validate() error
}

// validateBody decodes body as the model of kind, validates it and returns
// it as a generic row.
func validateBody(kind types.EntityKind, body json.RawMessage) (map[string]any, error) {
	var model any
	switch kind {
	case types.KindPersonalInfo:
		model = &finance.PersonalInfo{}
	case types.KindBusinessInfo:
		model = &finance.BusinessInfo{}
	case types.KindAssets:
		model = &finance.Asset{}
	case types.KindLiabilities:
		model = &finance.Liability{}
	case types.KindIncome:
		model = &finance.Income{}
	case types.KindExpenses:
		model = &finance.Expense{}
	default:
		return nil, ledgererr.Errorf(ledgererr.CodeCacheKeyInvalid, "invalid entity kind: %q", kind)
	}
	if err := json.Unmarshal(body, model); err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeServerRequestInvalid, "decoding record", ledgererr.FieldKind(string(kind)))
	}
	if v, ok := model.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	var row map[string]any
	if err := json.Unmarshal(body, &row); err != nil || row == nil {
		return nil, ledgererr.New(ledgererr.CodeServerRequestInvalid, "record must be a JSON object", ledgererr.FieldKind(string(kind)))
	}

	// Store the canonical frequency name, not the spelling the caller sent.
	if _, ok := row["frequency"]; ok {
		switch m := model.(type) {
		case *finance.Income:
			row["frequency"] = string(m.Frequency)
		case *finance.Expense:
			row["frequency"] = string(m.Frequency)
		}
	}
	return row, nil
}
