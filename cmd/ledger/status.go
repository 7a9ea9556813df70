// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/health"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connection health",
		Long:  "Query the running server for the remote connection state, retry counters and active error flags.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatusCall(cmd, http.MethodGet, "/api/v1/status")
		},
	}

	cmd.PersistentFlags().String("address", "", "server address (defaults to networking.listen)")

	probe := &cobra.Command{
		Use:   "probe",
		Short: "Probe the remote store now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatusCall(cmd, http.MethodPost, "/api/v1/status/probe")
		},
	}

	retry := &cobra.Command{
		Use:   "retry",
		Short: "Retry the connection with exponential backoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			attempts, _ := cmd.Flags().GetInt("attempts")
			if attempts < 1 || attempts > 10 {
				return ledgererr.Errorf(ledgererr.CodeCLIInputInvalid, "--attempts must be between 1 and 10, got %d", attempts)
			}
			return runRecovery(cmd, fmt.Sprintf("/api/v1/status/retry?max_attempts=%d", attempts))
		},
	}
	retry.Flags().Int("attempts", 3, "maximum probe attempts")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear the session and error flags, then reconnect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecovery(cmd, "/api/v1/status/reset")
		},
	}

	cmd.AddCommand(probe, retry, reset)
	return cmd
}

// serverAddress returns --address, falling back to the configured listen
// address.
func serverAddress(cmd *cobra.Command) string {
	if addr, _ := cmd.Flags().GetString("address"); addr != "" {
		return addr
	}
	return viper.GetString("networking.listen")
}

// reportNotRunning prints a friendly line for a stopped server and swallows
// the error; other errors are returned.
func reportNotRunning(out io.Writer, addr string, err error) error {
	if ledgererr.HasCode(err, ledgererr.CodeCLIServerNotRunning) {
		_, _ = fmt.Fprintf(out, "Ledger at %s is not running (run 'ledger start')\n", addr)
		return nil
	}
	return err
}

func runStatusCall(cmd *cobra.Command, method, path string) error {
	addr := serverAddress(cmd)
	out := cmd.OutOrStdout()

	c := newAPIClient(addr)
	var st health.Status
	var err error
	if method == http.MethodPost {
		err = c.postJSON(path, &st)
	} else {
		err = c.getJSON(path, &st)
	}
	if err != nil {
		return reportNotRunning(out, addr, err)
	}

	_, _ = fmt.Fprintf(out, "Ledger at %s\n%s", addr, renderStatus(st, time.Now()))
	return nil
}

type recoveryBody struct {
	Recovered bool          `json:"recovered"`
	Status    health.Status `json:"status"`
}

func runRecovery(cmd *cobra.Command, path string) error {
	addr := serverAddress(cmd)
	out := cmd.OutOrStdout()

	var body recoveryBody
	if err := newAPIClient(addr).postJSON(path, &body); err != nil {
		return reportNotRunning(out, addr, err)
	}

	if body.Recovered {
		_, _ = fmt.Fprintln(out, successStyle.Render("Recovered"))
	} else {
		_, _ = fmt.Fprintln(out, errorStyle.Render("Not recovered"))
	}
	_, _ = fmt.Fprint(out, renderStatus(body.Status, time.Now()))
	return nil
}
