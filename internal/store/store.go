// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// KV is a flat string key/value namespace. It is the persistence primitive
// behind the local cache and the connection error flags: one key maps to one
// opaque string value, with no expiry and no partial updates.
type KV interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Keys lists every key currently stored.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
