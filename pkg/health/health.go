// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package health

import "time"

// State is the connectivity state reported by the connection monitor.
type State string

const (
	StateUnknown   State = "unknown"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
	StateResetting State = "resetting"
)

// Valid reports whether s is a recognized state.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateHealthy, StateUnhealthy, StateResetting:
		return true
	default:
		return false
	}
}

// Status exposes the current connection health for the UI layer and
// operators. All fields are point-in-time snapshots safe to serialize to JSON.
type Status struct {
	State         State      `json:"state"`
	TotalRetries  int64      `json:"total_retries"`
	LastRetryAt   *time.Time `json:"last_retry_at,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastErrorKind string     `json:"last_error_kind,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	ResetCount    int64      `json:"reset_count"`
	Flags         []string   `json:"flags,omitempty"`
}

// Degraded reports whether callers should show the offline indicator.
func (s Status) Degraded() bool {
	return s.State == StateUnhealthy || s.State == StateResetting
}
