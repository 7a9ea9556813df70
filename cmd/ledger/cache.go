// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/store"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the local cache",
		Long:  "Operate directly on the configured cache backend. No server or remote connection is needed.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show cache size and entry count",
			RunE:  runCacheStats,
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Remove every cached entity and clear error flags",
			RunE:  runCachePurge,
		},
		&cobra.Command{
			Use:   "clear <user-id>",
			Short: "Remove every cached entity of one user",
			Args:  cobra.ExactArgs(1),
			RunE:  runCacheClear,
		},
	)

	return cmd
}

// withCache opens the configured KV for the duration of fn.
func withCache(fn func(kv store.KV) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	kv, err := openKV(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := kv.Close(); cerr != nil {
			slog.Warn("closing cache", "error", cerr)
		}
	}()
	return fn(kv)
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	return withCache(func(kv store.KV) error {
		st, err := cache.New(kv).Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "%-16s %d\n", "Entries:", st.EntryCount)
		_, _ = fmt.Fprintf(out, "%-16s %s\n", "Size:", formatBytes(uint64(st.SizeBytes)))
		oldest := "n/a"
		if st.OldestWrittenAt != nil {
			oldest = st.OldestWrittenAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(out, "%-16s %s\n", "Oldest entry:", oldest)
		return nil
	})
}

func runCachePurge(cmd *cobra.Command, _ []string) error {
	return withCache(func(kv store.KV) error {
		n, purgeErr := cache.New(kv).PurgeAll(cmd.Context())
		flagErr := cache.NewFlags(kv).ClearErrors(cmd.Context())
		if err := errors.Join(purgeErr, flagErr); err != nil {
			return ledgererr.Wrap(err, ledgererr.CodeCachePurgeFailure, "purging caches")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached entries\n", n)
		return nil
	})
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	userID, err := uuid.Parse(args[0])
	if err != nil || userID == uuid.Nil {
		return ledgererr.Errorf(ledgererr.CodeCLIInputInvalid, "user id must be a non-nil UUID, got %q", args[0])
	}
	return withCache(func(kv store.KV) error {
		n, err := cache.New(kv).PurgeUser(cmd.Context(), userID)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached entries for %s\n", n, userID)
		return nil
	})
}
