// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sigil-dev/ledger/internal/store"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// DefaultPrefix namespaces every key written by this backend.
const DefaultPrefix = "ledger:"

var _ store.KV = (*KV)(nil)

// KV implements store.KV on a Redis instance shared by several app
// processes. All keys live under a prefix so Keys() only sees our own.
type KV struct {
	client *goredis.Client
	prefix string
}

func init() {
	store.RegisterBackend("redis", func(cfg *store.StorageConfig) (store.KV, error) {
		client, err := Connect(context.Background(), cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return New(client, cfg.Prefix), nil
	})
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*goredis.Client, error) {
	if redisURL == "" {
		return nil, ledgererr.New(ledgererr.CodeStoreInvalidInput, "redis backend requires a redis url")
	}
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := goredis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, ledgererr.Wrap(parseErr, ledgererr.CodeStoreInvalidInput, "parse redis url")
		}
		return goredis.NewClient(opt), nil
	}
	return goredis.NewClient(&goredis.Options{Addr: redisURL}), nil
}

// New wraps an existing client. An empty prefix uses DefaultPrefix.
func New(client *goredis.Client, prefix string) *KV {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &KV{client: client, prefix: prefix}
}

func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *KV) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return store.ErrInvalidInput
	}
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *KV) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *KV) Close() error { return s.client.Close() }
