// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/store"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/types"
)

// TTL is how long a cached entry is served without consulting the remote store.
const TTL = 15 * time.Minute

// SourceRemote marks entries written from a successful remote read.
const SourceRemote = "remote"

// Entry is one cached entity payload together with its write metadata.
type Entry struct {
	Key       types.CacheKey
	Payload   json.RawMessage
	WrittenAt time.Time // zero when the metadata record is missing or unreadable
	Source    string
}

// Stats summarises the cache contents.
type Stats struct {
	SizeBytes       int64      `json:"size_bytes"`
	EntryCount      int        `json:"entry_count"`
	OldestWrittenAt *time.Time `json:"oldest_written_at,omitempty"`
}

// meta is the persisted "{key}_meta" record.
type meta struct {
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Source    string `json:"source"`
}

// Store is the local cache of remote entity reads. Each Store wraps its own
// KV so tests and tenants get isolated instances.
type Store struct {
	kv      store.KV
	ttl     time.Duration
	entries sync.RWMutex // pairs payload and metadata across reads and writes
	mu      sync.Mutex   // guards nowFunc
	nowFunc func() time.Time
}

// New creates a cache Store over kv using the fixed TTL.
func New(kv store.KV) *Store {
	return &Store{
		kv:      kv,
		ttl:     TTL,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	s.nowFunc = fn
	s.mu.Unlock()
}

func (s *Store) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowFunc()
}

// Get returns the cached entry for key. It never fails hard: ok is false when
// nothing usable is cached, and the returned error is a non-fatal warning
// (cache.entry.parse_error or a backend read failure) for the caller to log.
// A corrupt payload is reported as absent and left in place.
func (s *Store) Get(ctx context.Context, key types.CacheKey) (Entry, bool, error) {
	s.entries.RLock()
	defer s.entries.RUnlock()

	raw, ok, err := s.kv.Get(ctx, key.String())
	if err != nil {
		return Entry{}, false, ledgererr.Wrap(err, ledgererr.CodeCacheEntryParseError, "reading cache entry", ledgererr.FieldKey(key.String()))
	}
	if !ok {
		return Entry{}, false, nil
	}
	if !json.Valid([]byte(raw)) {
		return Entry{}, false, ledgererr.New(ledgererr.CodeCacheEntryParseError, "cached payload is not valid JSON", ledgererr.FieldKey(key.String()))
	}

	entry := Entry{Key: key, Payload: json.RawMessage(raw)}

	rawMeta, ok, err := s.kv.Get(ctx, key.MetaKey())
	if err != nil || !ok {
		// Without metadata the entry is still a usable fallback, just never fresh.
		return entry, true, ledgererr.Wrap(err, ledgererr.CodeCacheEntryParseError, "reading cache metadata", ledgererr.FieldKey(key.MetaKey()))
	}
	var m meta
	if err := json.Unmarshal([]byte(rawMeta), &m); err != nil {
		return entry, true, ledgererr.Wrap(err, ledgererr.CodeCacheEntryParseError, "decoding cache metadata", ledgererr.FieldKey(key.MetaKey()))
	}
	if m.Timestamp > 0 {
		entry.WrittenAt = time.UnixMilli(m.Timestamp)
	}
	entry.Source = m.Source
	return entry, true, nil
}

// IsFresh reports whether the entry is younger than the TTL.
func (s *Store) IsFresh(e Entry) bool {
	if e.WrittenAt.IsZero() {
		return false
	}
	return s.now().Sub(e.WrittenAt) < s.ttl
}

// Put overwrites the entry for key with payload and stamps its metadata.
// json.RawMessage payloads are stored verbatim.
func (s *Store) Put(ctx context.Context, key types.CacheKey, payload any) (time.Time, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return time.Time{}, ledgererr.Wrap(err, ledgererr.CodeCacheEntryWriteFailure, "encoding cache payload", ledgererr.FieldKey(key.String()))
	}

	writtenAt := s.now()
	m, err := json.Marshal(meta{Timestamp: writtenAt.UnixMilli(), Source: SourceRemote})
	if err != nil {
		return time.Time{}, ledgererr.Wrap(err, ledgererr.CodeCacheEntryWriteFailure, "encoding cache metadata")
	}

	s.entries.Lock()
	defer s.entries.Unlock()

	if err := s.kv.Set(ctx, key.String(), string(data)); err != nil {
		return time.Time{}, ledgererr.Wrap(err, ledgererr.CodeCacheEntryWriteFailure, "writing cache payload", ledgererr.FieldKey(key.String()))
	}
	if err := s.kv.Set(ctx, key.MetaKey(), string(m)); err != nil {
		return time.Time{}, ledgererr.Wrap(err, ledgererr.CodeCacheEntryWriteFailure, "writing cache metadata", ledgererr.FieldKey(key.MetaKey()))
	}
	return writtenAt, nil
}

// Purge removes every cached entry whose key matches pred, deleting each
// payload and then immediately its metadata. Orphaned metadata records that
// match are removed too. It returns the number of payload entries removed.
func (s *Store) Purge(ctx context.Context, pred func(types.CacheKey) bool) (int, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return 0, ledgererr.Wrap(err, ledgererr.CodeCachePurgeFailure, "listing cache keys")
	}

	s.entries.Lock()
	defer s.entries.Unlock()

	payloads := make(map[types.CacheKey]bool)
	var orphans []string
	for _, raw := range keys {
		key, isMeta, err := types.ParseStorageKey(raw)
		if err != nil || !pred(key) {
			continue
		}
		if isMeta {
			orphans = append(orphans, raw)
			continue
		}
		payloads[key] = true
	}

	var errs []error
	removed := 0
	for key := range payloads {
		if err := s.kv.Delete(ctx, key.String()); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		if err := s.kv.Delete(ctx, key.MetaKey()); err != nil {
			errs = append(errs, err)
		}
	}
	for _, raw := range orphans {
		key, _, _ := types.ParseStorageKey(raw)
		if payloads[key] {
			continue
		}
		if err := s.kv.Delete(ctx, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return removed, ledgererr.Wrap(errors.Join(errs...), ledgererr.CodeCachePurgeFailure, "purging cache entries")
	}
	return removed, nil
}

// PurgeUser removes every cached entity for one user.
func (s *Store) PurgeUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.Purge(ctx, func(k types.CacheKey) bool { return k.UserID == userID })
}

// PurgeAll removes every entry of every recognized entity kind and leaves
// unrelated keys untouched.
func (s *Store) PurgeAll(ctx context.Context) (int, error) {
	return s.Purge(ctx, func(types.CacheKey) bool { return true })
}

// Stats reports the size of all recognized cache records, the number of
// payload entries, and the oldest write timestamp.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return Stats{}, ledgererr.Wrap(err, ledgererr.CodeStoreDatabaseFailure, "listing cache keys")
	}

	var st Stats
	for _, raw := range keys {
		_, isMeta, err := types.ParseStorageKey(raw)
		if err != nil {
			continue
		}
		v, ok, err := s.kv.Get(ctx, raw)
		if err != nil || !ok {
			continue
		}
		st.SizeBytes += int64(len(raw) + len(v))
		if !isMeta {
			st.EntryCount++
			continue
		}
		var m meta
		if json.Unmarshal([]byte(v), &m) != nil || m.Timestamp <= 0 {
			continue
		}
		ts := time.UnixMilli(m.Timestamp)
		if st.OldestWrittenAt == nil || ts.Before(*st.OldestWrittenAt) {
			st.OldestWrittenAt = &ts
		}
	}
	return st, nil
}
