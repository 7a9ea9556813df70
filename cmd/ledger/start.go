// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the ledger data API",
		Long:  "Load configuration, connect to the remote store, start the health monitor and serve the HTTP API.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := WireApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wiring ledger: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("closing ledger", "error", err)
		}
	}()

	srv, err := app.NewServer()
	if err != nil {
		return ledgererr.Errorf(ledgererr.CodeCLISetupFailure, "creating server: %w", err)
	}

	if cfg.Monitor.Interval > 0 {
		monCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go app.Monitor.Run(monCtx, cfg.Monitor.Interval)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting ledger on %s (remote=%s, cache=%s)\n",
		cfg.Networking.Listen, cfg.Remote.Backend, cfg.Cache.Backend)

	return srv.Start(ctx)
}
