// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Help(t *testing.T) {
	root, buf := newTestRoot(t, "--help")

	require.NoError(t, root.Execute())
	for _, want := range []string{"ledger", "start", "status", "watch", "cache", "session", "doctor", "version"} {
		assert.Contains(t, buf.String(), want)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	root, buf := newTestRoot(t, "--verbose", "--help")

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "--config")
	assert.Contains(t, buf.String(), "--data-dir")
	assert.Contains(t, buf.String(), "--verbose")
}

func TestVersionCommand(t *testing.T) {
	root, buf := newTestRoot(t, "version")

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "ledger dev")
}

func TestInitViper_BootstrapsDefaultConfig(t *testing.T) {
	root, buf := newTestRoot(t, "config", "show")

	require.NoError(t, root.Execute())

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	path := filepath.Join(home, ".config", "ledger", "ledger.yaml")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Contains(t, buf.String(), "# "+path)
	assert.Contains(t, buf.String(), "127.0.0.1:18790")
}

func TestInitViper_MissingExplicitConfig(t *testing.T) {
	root, _ := newTestRoot(t, "config", "show", "--config", "/nonexistent/ledger.yaml")

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, ledgererr.HasCode(err, ledgererr.CodeConfigLoadReadFailure))
}

func TestConfigShow_RedactsCredentials(t *testing.T) {
	path := writeTestConfig(t, `
remote:
  url: "https://project.example.com"
  api_key: "anon-secret"
cache:
  backend: memory
`)
	root, buf := newTestRoot(t, "config", "show", "--config", path)

	require.NoError(t, root.Execute())
	assert.NotContains(t, buf.String(), "anon-secret")
	assert.Contains(t, buf.String(), "********")
	assert.Contains(t, buf.String(), "https://project.example.com")
}

func TestConfigShow_EnvOverride(t *testing.T) {
	path := writeTestConfig(t, "cache:\n  backend: memory\n")
	root, buf := newTestRoot(t, "config", "show", "--config", path)
	t.Setenv("LEDGER_NETWORKING_LISTEN", "127.0.0.1:9999")

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "127.0.0.1:9999")
}

func TestConfig_InvalidValueFails(t *testing.T) {
	path := writeTestConfig(t, "remote:\n  backend: graphql\n")
	root, _ := newTestRoot(t, "config", "show", "--config", path)

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote.backend")
}

func TestStartCommand_RequiresConfig(t *testing.T) {
	root, _ := newTestRoot(t, "start", "--config", "/nonexistent/path.yaml")

	assert.Error(t, root.Execute())
}

func TestStartCommand_RestWithoutURL(t *testing.T) {
	path := writeTestConfig(t, "cache:\n  backend: memory\n")
	root, _ := newTestRoot(t, "start", "--config", path)

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, ledgererr.HasCode(err, ledgererr.CodeRemoteRequestInvalid))
	assert.Contains(t, err.Error(), "ledger init")
}

func TestLoadConfig_DataDirRelocatesCache(t *testing.T) {
	dataDir := t.TempDir()
	root, buf := newTestRoot(t, "config", "show", "--data-dir", dataDir)

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), filepath.Join(dataDir, "cache.db"))
}
