// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend  string // "memory", "sqlite" or "redis"; empty means "memory".
	Path     string // Database file for the sqlite backend.
	RedisURL string // redis:// URL or host:port for the redis backend.
	Prefix   string // Key namespace for shared backends (redis).
}
