// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/config"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/health"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, configuration, running server, remote connectivity, stored session, local cache and disk space.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", "", "server address (defaults to networking.listen)")
	cmd.Flags().Bool("offline", false, "skip the remote connectivity probe")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr := serverAddress(cmd)
	offline, _ := cmd.Flags().GetBool("offline")
	dataDir := resolveDataDir()

	// A config that fails validation still gets the checks that do not need it.
	cfg, cfgErr := loadConfig()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cfg, cfgErr) }},
		{"Server", func() string { return checkServer(addr) }},
		{"Remote", func() string { return checkRemote(cmd.Context(), cfg, offline) }},
		{"Session", func() string { return checkSession(cmd.Context(), cfg) }},
		{"Cache", func() string { return checkCache(cmd.Context(), cfg) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

// resolveDataDir returns the data directory from viper or the default.
func resolveDataDir() string {
	if dataDir := viper.GetString("data_dir"); dataDir != "" {
		return dataDir
	}
	dir, _ := config.DataDir()
	return dir
}

func checkBinary() string {
	return fmt.Sprintf("ledger %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(cfg *config.Config, err error) string {
	if err != nil {
		return fmt.Sprintf("invalid: %s", err)
	}
	if file := cfg.File(); file != "" {
		return fmt.Sprintf("loaded from %s", file)
	}
	return "using defaults (no config file found)"
}

func checkServer(addr string) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := newAPIClient(addr).getJSON("/health", &body); err != nil {
		if ledgererr.HasCode(err, ledgererr.CodeCLIServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'ledger start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkRemote(ctx context.Context, cfg *config.Config, offline bool) string {
	switch {
	case cfg == nil:
		return "skipped (config invalid)"
	case offline:
		return "skipped (--offline)"
	case cfg.Remote.Backend == "rest" && cfg.Remote.URL == "":
		return "not configured (run 'ledger init')"
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Remote.Timeout+5*time.Second)
	defer cancel()

	app, err := WireApp(ctx, cfg)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	defer func() { _ = app.Close() }()

	st := app.Ledger.CheckDatabaseHealth(ctx)
	if st.State == health.StateHealthy {
		return fmt.Sprintf("%s reachable (%s)", cfg.Remote.Backend, st.State)
	}
	return fmt.Sprintf("%s %s: %s", cfg.Remote.Backend, st.State, st.LastErrorKind)
}

func checkSession(ctx context.Context, cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	t, err := newSessionStore(cfg).Load(ctx)
	if err != nil {
		if ledgererr.HasCode(err, ledgererr.CodeSessionNotFound) {
			return "none stored (writes use the api key only)"
		}
		return fmt.Sprintf("error: %s", err)
	}
	switch {
	case t.ExpiresAt.IsZero():
		return "present"
	case t.ExpiresAt.Before(time.Now()):
		return "expired at " + t.ExpiresAt.Format(time.RFC3339)
	default:
		return "present, expires " + t.ExpiresAt.Format(time.RFC3339)
	}
}

func checkCache(ctx context.Context, cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	kv, err := openKV(cfg)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	defer func() { _ = kv.Close() }()

	st, err := cache.New(kv).Stats(ctx)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s, %d entries (%s)", cfg.Cache.Backend, st.EntryCount, formatBytes(uint64(st.SizeBytes)))
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
		kb = 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
