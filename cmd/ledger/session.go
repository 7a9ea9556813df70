// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sigil-dev/ledger/internal/session"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the stored remote session",
		Long:  "Store, inspect, refresh or clear the access token used for remote writes. Tokens live in the OS keyring.",
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Store session tokens (access token read from stdin when --access-token is omitted)",
		RunE:  runSessionSet,
	}
	set.Flags().String("access-token", "", "access token (JWT)")
	set.Flags().String("refresh-token", "", "refresh token")

	cmd.AddCommand(
		set,
		&cobra.Command{
			Use:   "show",
			Short: "Show whether a session is stored and when it expires",
			RunE:  runSessionShow,
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Exchange the refresh token for a new session",
			RunE:  runSessionRefresh,
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the stored session",
			RunE:  runSessionClear,
		},
	)

	return cmd
}

func sessionStore() (*session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newSessionStore(cfg), nil
}

func runSessionSet(cmd *cobra.Command, _ []string) error {
	access, _ := cmd.Flags().GetString("access-token")
	refresh, _ := cmd.Flags().GetString("refresh-token")
	if access == "" {
		var err error
		if access, err = readLine(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	sess, err := sessionStore()
	if err != nil {
		return err
	}
	if err := sess.Save(cmd.Context(), session.Tokens{AccessToken: access, RefreshToken: refresh}); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Session stored")
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", ledgererr.Errorf(ledgererr.CodeCLIInputInvalid, "reading access token: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ledgererr.New(ledgererr.CodeCLIInputInvalid, "access token is required (--access-token or stdin)")
	}
	return line, nil
}

func runSessionShow(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	sess, err := sessionStore()
	if err != nil {
		return err
	}

	t, err := sess.Load(cmd.Context())
	if err != nil {
		if ledgererr.HasCode(err, ledgererr.CodeSessionNotFound) {
			_, _ = fmt.Fprintln(out, "No session stored")
			return nil
		}
		return err
	}

	_, _ = fmt.Fprintf(out, "%-16s %s\n", "Session:", successStyle.Render("present"))
	switch {
	case t.ExpiresAt.IsZero():
		_, _ = fmt.Fprintf(out, "%-16s %s\n", "Expires:", "unknown")
	case t.ExpiresAt.Before(time.Now()):
		_, _ = fmt.Fprintf(out, "%-16s %s\n", "Expires:", errorStyle.Render("expired "+t.ExpiresAt.Format(time.RFC3339)))
	default:
		_, _ = fmt.Fprintf(out, "%-16s %s\n", "Expires:", t.ExpiresAt.Format(time.RFC3339))
	}
	refresh := "no"
	if t.RefreshToken != "" {
		refresh = "yes"
	}
	_, _ = fmt.Fprintf(out, "%-16s %s\n", "Refreshable:", refresh)
	return nil
}

func runSessionRefresh(cmd *cobra.Command, _ []string) error {
	sess, err := sessionStore()
	if err != nil {
		return err
	}
	if err := sess.Refresh(cmd.Context()); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Session refreshed")
	return nil
}

func runSessionClear(cmd *cobra.Command, _ []string) error {
	sess, err := sessionStore()
	if err != nil {
		return err
	}
	if err := sess.Clear(cmd.Context()); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Session cleared")
	return nil
}
