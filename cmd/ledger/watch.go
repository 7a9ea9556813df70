// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/health"
	"github.com/spf13/cobra"
)

// --- bubbletea messages ---

type (
	pollMsg      struct{}
	statusMsg    struct{ status health.Status }
	statusErrMsg struct{ err error }
	actionMsg    struct {
		action    string
		recovered bool
		status    health.Status
	}
)

// watchModel is a live connection-health dashboard. r retries with
// backoff, x performs a full reset, p probes now.
type watchModel struct {
	client   *apiClient
	addr     string
	interval time.Duration
	spinner  spinner.Model
	status   *health.Status
	err      error
	pending  string // running action, "" when idle
	lastMsg  string
	updated  time.Time
	now      func() time.Time
}

func newWatchModel(addr string, interval time.Duration) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return watchModel{
		client:   newAPIClient(addr),
		addr:     addr,
		interval: interval,
		spinner:  sp,
		now:      time.Now,
	}
}

func (m watchModel) Init() tea.Cmd {
	return fetchStatusCmd(m.client)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.pending == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollMsg:
		return m, fetchStatusCmd(m.client)

	case statusMsg:
		st := msg.status
		m.status = &st
		m.err = nil
		m.updated = m.now()
		return m, pollAfter(m.interval)

	case statusErrMsg:
		m.err = msg.err
		m.updated = m.now()
		return m, pollAfter(m.interval)

	case actionMsg:
		st := msg.status
		m.status = &st
		m.err = nil
		m.pending = ""
		m.updated = m.now()
		if msg.recovered {
			m.lastMsg = msg.action + ": recovered"
		} else {
			m.lastMsg = msg.action + ": not recovered"
		}
		return m, nil
	}
	return m, nil
}

func (m watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	}
	if m.pending != "" {
		return m, nil
	}

	switch msg.String() {
	case "p":
		m.pending = "probe"
		return m, tea.Batch(m.spinner.Tick, actionCmd(m.client, "probe", "/api/v1/status/probe"))
	case "r":
		m.pending = "retry"
		return m, tea.Batch(m.spinner.Tick, actionCmd(m.client, "retry", "/api/v1/status/retry?max_attempts=3"))
	case "x":
		m.pending = "reset"
		return m, tea.Batch(m.spinner.Tick, actionCmd(m.client, "reset", "/api/v1/status/reset"))
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Ledger Connection  ") + " " + dimStyle.Render(m.addr) + "\n\n")

	switch {
	case m.err != nil && ledgererr.HasCode(m.err, ledgererr.CodeCLIServerNotRunning):
		b.WriteString(errorStyle.Render("Server not running (run 'ledger start')") + "\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n")
	case m.status == nil:
		b.WriteString(dimStyle.Render("Loading…") + "\n")
	default:
		b.WriteString(renderStatus(*m.status, m.now()))
	}

	b.WriteString("\n")
	if m.pending != "" {
		b.WriteString(m.spinner.View() + " Running " + m.pending + "…\n")
	} else if m.lastMsg != "" {
		b.WriteString(dimStyle.Render(m.lastMsg) + "\n")
	}
	if !m.updated.IsZero() {
		b.WriteString(dimStyle.Render("Updated "+m.updated.Format(time.TimeOnly)) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("p probe  r retry  x reset  q quit"))

	return boxStyle.Render(b.String())
}

// --- tea.Cmd factories ---

func pollAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return pollMsg{} })
}

func fetchStatusCmd(c *apiClient) tea.Cmd {
	return func() tea.Msg {
		var st health.Status
		if err := c.getJSON("/api/v1/status", &st); err != nil {
			return statusErrMsg{err: err}
		}
		return statusMsg{status: st}
	}
}

func actionCmd(c *apiClient, action, path string) tea.Cmd {
	return func() tea.Msg {
		if action == "probe" {
			var st health.Status
			if err := c.postJSON(path, &st); err != nil {
				return statusErrMsg{err: err}
			}
			return actionMsg{action: action, recovered: st.State == health.StateHealthy, status: st}
		}
		var body recoveryBody
		if err := c.postJSON(path, &body); err != nil {
			return statusErrMsg{err: err}
		}
		return actionMsg{action: action, recovered: body.Recovered, status: body.Status}
	}
}

// --- Cobra command ---

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live connection health dashboard",
		Long:  "Poll the running server's status endpoint and offer probe, retry and reset actions.",
		RunE:  runWatch,
	}

	cmd.Flags().String("address", "", "server address (defaults to networking.listen)")
	cmd.Flags().Duration("interval", 2*time.Second, "poll interval")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		return ledgererr.Errorf(ledgererr.CodeCLIInputInvalid, "--interval must be positive, got %s", interval)
	}

	m := newWatchModel(serverAddress(cmd), interval)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return ledgererr.Errorf(ledgererr.CodeCLISetupFailure, "watch: %w", err)
	}
	return nil
}
