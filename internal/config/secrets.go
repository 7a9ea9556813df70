// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"log/slog"
	"strings"

	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const keyringScheme = "keyring://"

// secretKeys are the config keys that may hold a keyring:// reference
// instead of a literal credential.
var secretKeys = []string{"remote.api_key", "remote.database_url", "cache.redis_url"}

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", ledgererr.Errorf(ledgererr.CodeConfigSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ledgererr.Errorf(ledgererr.CodeConfigSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return parts[0], parts[1], nil
}

// ResolveKeyringURI returns the secret a keyring:// URI points at. Other
// values are returned unchanged.
func ResolveKeyringURI(value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ledgererr.Errorf(ledgererr.CodeConfigSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", ledgererr.Wrapf(err, ledgererr.CodeConfigSecretResolveFailure, "resolving keyring URI %q", value)
	}

	return secret, nil
}

// ResolveSecrets replaces keyring:// references in the credential keys of v
// with the stored secrets. Failures are logged and the reference is kept,
// so the error surfaces when the credential is used.
func ResolveSecrets(v *viper.Viper) {
	for _, key := range secretKeys {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := ResolveKeyringURI(val)
		if err != nil {
			slog.Warn("failed to resolve keyring URI, keeping original value",
				"config_key", key,
				"error", err,
			)
			continue
		}

		v.Set(key, resolved)
	}
}
