// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache

import (
	"context"
	"errors"

	"github.com/sigil-dev/ledger/internal/store"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// Flag is a persisted diagnostic marker recording that a class of remote
// failure has been seen. Presence means true.
type Flag string

const (
	FlagSchemaError    Flag = "db_schema_error"
	FlagAuthError      Flag = "db_auth_error"
	FlagNetworkError   Flag = "db_network_error"
	FlagRateLimitError Flag = "db_rate_limit_error"
)

// ConnectionStatusKey stores the last observed ConnectionStatus.
const ConnectionStatusKey = "db_connection_status"

// ConnectionStatus is the coarse reachability recorded after each remote call.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// ErrorFlags lists every error flag in a stable order.
func ErrorFlags() []Flag {
	return []Flag{FlagSchemaError, FlagAuthError, FlagNetworkError, FlagRateLimitError}
}

// Flags reads and writes the error flags. Flags are diagnostics only; they
// never block subsequent calls.
type Flags struct {
	kv store.KV
}

// NewFlags creates a Flags view over kv.
func NewFlags(kv store.KV) *Flags {
	return &Flags{kv: kv}
}

// Set raises the flag.
func (f *Flags) Set(ctx context.Context, flag Flag) error {
	if err := f.kv.Set(ctx, string(flag), "true"); err != nil {
		return ledgererr.Wrap(err, ledgererr.CodeStoreDatabaseFailure, "setting flag", ledgererr.FieldKey(string(flag)))
	}
	return nil
}

// Has reports whether the flag is raised. Read failures count as not raised.
func (f *Flags) Has(ctx context.Context, flag Flag) bool {
	_, ok, err := f.kv.Get(ctx, string(flag))
	return err == nil && ok
}

// Active returns the raised error flags.
func (f *Flags) Active(ctx context.Context) []Flag {
	var out []Flag
	for _, flag := range ErrorFlags() {
		if f.Has(ctx, flag) {
			out = append(out, flag)
		}
	}
	return out
}

// ClearErrors lowers every error flag.
func (f *Flags) ClearErrors(ctx context.Context) error {
	keys := make([]string, 0, len(ErrorFlags()))
	for _, flag := range ErrorFlags() {
		keys = append(keys, string(flag))
	}
	if err := f.kv.Delete(ctx, keys...); err != nil {
		return ledgererr.Wrap(err, ledgererr.CodeStoreDatabaseFailure, "clearing error flags")
	}
	return nil
}

// SetConnectionStatus records the latest reachability.
func (f *Flags) SetConnectionStatus(ctx context.Context, status ConnectionStatus) error {
	if err := f.kv.Set(ctx, ConnectionStatusKey, string(status)); err != nil {
		return ledgererr.Wrap(err, ledgererr.CodeStoreDatabaseFailure, "setting connection status")
	}
	return nil
}

// ConnectionStatus returns the recorded reachability, if any.
func (f *Flags) ConnectionStatus(ctx context.Context) (ConnectionStatus, bool) {
	v, ok, err := f.kv.Get(ctx, ConnectionStatusKey)
	if err != nil || !ok {
		return "", false
	}
	return ConnectionStatus(v), true
}

// Reset lowers every error flag and forgets the connection status.
func (f *Flags) Reset(ctx context.Context) error {
	return errors.Join(
		f.ClearErrors(ctx),
		f.kv.Delete(ctx, ConnectionStatusKey),
	)
}
