// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sigil-dev/ledger/pkg/health"
)

// --- lipgloss styles ---

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

func stateStyle(s health.State) lipgloss.Style {
	switch s {
	case health.StateHealthy:
		return successStyle
	case health.StateUnhealthy:
		return errorStyle
	case health.StateResetting:
		return warnStyle
	default:
		return dimStyle
	}
}

// renderStatus formats a connection snapshot as aligned label/value lines.
func renderStatus(st health.Status, now time.Time) string {
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%-16s %s\n", label+":", value)
	}

	line("State", stateStyle(st.State).Render(string(st.State)))
	if st.LastErrorKind != "" {
		line("Last error", fmt.Sprintf("%s (%s)", st.LastErrorKind, st.LastError))
	}
	line("Last checked", ago(st.LastCheckedAt, now))
	line("Retries", fmt.Sprintf("%d (last %s)", st.TotalRetries, ago(st.LastRetryAt, now)))
	line("Resets", fmt.Sprintf("%d", st.ResetCount))
	if len(st.Flags) == 0 {
		line("Flags", dimStyle.Render("none"))
	} else {
		line("Flags", warnStyle.Render(strings.Join(st.Flags, ", ")))
	}
	return b.String()
}

func ago(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	d := now.Sub(*t).Truncate(time.Second)
	if d < time.Second {
		return "just now"
	}
	return d.String() + " ago"
}
