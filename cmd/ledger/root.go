// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/sigil-dev/ledger/internal/config"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root ledger command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledger",
		Short:         "Ledger: resilient data access for personal finance records",
		Long:          "Ledger serves finance records from a remote store through a local cache, classifying failures and tracking connection health.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initViper(cmd); err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags, mapped to viper keys in initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "directory for the local cache database")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newCacheCmd(),
		newSessionCmd(),
		newConfigCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return ledgererr.Errorf(ledgererr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		config.AddConfigPaths(v)
		// No config file is fine; defaults and env vars still apply.
		// Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return ledgererr.Errorf(ledgererr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return ledgererr.Errorf(ledgererr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return ledgererr.Errorf(ledgererr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return ledgererr.Errorf(ledgererr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

// setupLogging installs the default slog handler from log.level and
// log.format. --verbose forces debug.
func setupLogging(w io.Writer) {
	lc := config.LogConfig{
		Level:  viper.GetString("log.level"),
		Format: viper.GetString("log.format"),
	}
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	if viper.GetBool("verbose") {
		opts.Level = slog.LevelDebug
	}

	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// loadConfig decodes and validates the resolved viper state. A --data-dir
// flag relocates the sqlite cache unless cache.path is set explicitly.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if file := cfg.File(); file != "" {
		config.WarnInsecurePermissions(file)
	}
	if dir := viper.GetString("data_dir"); dir != "" && cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(dir, "cache.db")
	}
	return cfg, nil
}
