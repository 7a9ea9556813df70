// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"strings"

	"github.com/google/uuid"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// MetaSuffix is appended to a cache key to form its metadata key.
const MetaSuffix = "_meta"

// CacheKey addresses the cached copy of one entity kind for one user.
// Its string form "{kind}_{userId}" is only used as the persisted encoding.
type CacheKey struct {
	Kind   EntityKind
	UserID uuid.UUID
}

// NewCacheKey validates kind and builds a key.
func NewCacheKey(kind EntityKind, userID uuid.UUID) (CacheKey, error) {
	if !kind.Valid() {
		return CacheKey{}, ledgererr.Errorf(ledgererr.CodeCacheKeyInvalid, "invalid entity kind: %q", kind)
	}
	if userID == uuid.Nil {
		return CacheKey{}, ledgererr.New(ledgererr.CodeCacheKeyInvalid, "user id must not be nil")
	}
	return CacheKey{Kind: kind, UserID: userID}, nil
}

// String returns the persisted storage key.
func (k CacheKey) String() string {
	return string(k.Kind) + "_" + k.UserID.String()
}

// MetaKey returns the persisted key of the entry's metadata record.
func (k CacheKey) MetaKey() string {
	return k.String() + MetaSuffix
}

// ParseStorageKey decodes a persisted key. meta is true when raw names the
// metadata record rather than the payload. Keys that do not belong to a
// recognized kind return a cache.key.invalid error.
func ParseStorageKey(raw string) (key CacheKey, meta bool, err error) {
	rest := raw
	if strings.HasSuffix(rest, MetaSuffix) {
		rest = strings.TrimSuffix(rest, MetaSuffix)
		meta = true
	}

	for _, kind := range AllKinds() {
		prefix := string(kind) + "_"
		if !strings.HasPrefix(rest, prefix) {
			continue
		}
		id, parseErr := uuid.Parse(strings.TrimPrefix(rest, prefix))
		if parseErr != nil {
			return CacheKey{}, false, ledgererr.Wrapf(parseErr, ledgererr.CodeCacheKeyInvalid, "parsing user id in key %q", raw)
		}
		return CacheKey{Kind: kind, UserID: id}, meta, nil
	}

	return CacheKey{}, false, ledgererr.Errorf(ledgererr.CodeCacheKeyInvalid, "unrecognized cache key %q", raw)
}
