// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGenerateSpec(t *testing.T) {
	spec, err := generateSpec("json")
	require.NoError(t, err)
	assert.Contains(t, string(spec), "openapi")
	assert.Contains(t, string(spec), "3.1")
	assert.Contains(t, string(spec), "/api/v1/users/{userId}/{kind}")
	assert.Contains(t, string(spec), "/api/v1/users/{userId}/summary")
	assert.Contains(t, string(spec), "/api/v1/status/retry")
	assert.Contains(t, string(spec), "/api/v1/cache/stats")
	assert.Contains(t, string(spec), "/health")
}

func TestGenerateSpec_ValidJSON(t *testing.T) {
	spec, err := generateSpec("json")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(spec, &doc))
	assert.Contains(t, doc, "paths")
}

func TestGenerateSpec_YAML(t *testing.T) {
	spec, err := generateSpec("yaml")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(spec, &doc))
	info, ok := doc["info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ledger Data API", info["title"])
}

func TestSpecFormat(t *testing.T) {
	assert.Equal(t, "yaml", specFormat("api/openapi/spec.yaml"))
	assert.Equal(t, "yaml", specFormat("spec.YML"))
	assert.Equal(t, "json", specFormat("api/openapi/spec.json"))
	assert.Equal(t, "json", specFormat("spec"))
}
