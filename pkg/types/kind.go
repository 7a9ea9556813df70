// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"strings"

	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// EntityKind identifies one of the tracked financial data categories.
// The string value doubles as the remote table name and the cache key prefix.
type EntityKind string

const (
	KindPersonalInfo EntityKind = "personal_info"
	KindBusinessInfo EntityKind = "business_info"
	KindAssets       EntityKind = "assets"
	KindLiabilities  EntityKind = "liabilities"
	KindIncome       EntityKind = "income"
	KindExpenses     EntityKind = "expenses"
)

// AllKinds lists every recognized entity kind in a stable order.
func AllKinds() []EntityKind {
	return []EntityKind{
		KindPersonalInfo,
		KindBusinessInfo,
		KindAssets,
		KindLiabilities,
		KindIncome,
		KindExpenses,
	}
}

// Valid reports whether k is a recognized entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindPersonalInfo, KindBusinessInfo, KindAssets, KindLiabilities, KindIncome, KindExpenses:
		return true
	default:
		return false
	}
}

// Singular reports whether the kind holds one record per user rather than a list.
func (k EntityKind) Singular() bool {
	return k == KindPersonalInfo || k == KindBusinessInfo
}

// Table returns the remote table that stores this kind.
func (k EntityKind) Table() string {
	return string(k)
}

// ParseEntityKind parses a case-insensitive string into an EntityKind.
// Hyphenated forms ("personal-info") are accepted for URL friendliness.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !k.Valid() {
		return "", ledgererr.Errorf(ledgererr.CodeCacheKeyInvalid, "invalid entity kind: %q", s)
	}
	return k, nil
}
