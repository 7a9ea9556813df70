// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctor_Offline(t *testing.T) {
	cfgPath := writeTestConfig(t, "cache:\n  backend: memory\n")
	root, buf := newTestRoot(t, "doctor", "--offline", "--address", "127.0.0.1:1", "--config", cfgPath)

	require.NoError(t, root.Execute())
	out := buf.String()
	for _, want := range []string{
		"Binary:", "ledger dev",
		"Config:", "loaded from " + cfgPath,
		"Server:", "not running at 127.0.0.1:1",
		"Remote:", "skipped (--offline)",
		"Session:",
		"Cache:", "memory, 0 entries",
		"Disk Space:", "available",
	} {
		assert.Contains(t, out, want)
	}
}

func TestDoctor_RemoteNotConfigured(t *testing.T) {
	cfgPath := writeTestConfig(t, "cache:\n  backend: memory\n")
	root, buf := newTestRoot(t, "doctor", "--address", "127.0.0.1:1", "--config", cfgPath)

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "not configured (run 'ledger init')")
}

func TestDoctor_ProbesRemote(t *testing.T) {
	remoteSrv, calls := fakeRemote(t, 200, `[]`)
	cfgPath := writeTestConfig(t, "cache:\n  backend: memory\nremote:\n  url: \""+remoteSrv.URL+"\"\n")
	root, buf := newTestRoot(t, "doctor", "--address", "127.0.0.1:1", "--config", cfgPath)

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "rest reachable (healthy)")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoctor_InvalidConfigStillRuns(t *testing.T) {
	cfgPath := writeTestConfig(t, "log:\n  format: xml\n")
	root, buf := newTestRoot(t, "doctor", "--offline", "--address", "127.0.0.1:1", "--config", cfgPath)

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "invalid:")
	assert.Contains(t, buf.String(), "skipped (config invalid)")
	assert.Contains(t, buf.String(), "Disk Space:")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 bytes"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}
