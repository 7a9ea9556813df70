// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigil-dev/ledger/internal/server"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

func main() {
	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	spec, err := generateSpec(specFormat(outPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// specFormat picks yaml for .yaml/.yml output paths and json otherwise.
func specFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// generateSpec registers every route on a server without a ledger service
// and extracts the OpenAPI document huma derives from the Go types.
// Handlers are never invoked.
func generateSpec(format string) ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, ledgererr.Errorf(ledgererr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterLedger(nil)

	doc := srv.API().OpenAPI()
	if format == "yaml" {
		return doc.YAML()
	}
	return json.MarshalIndent(doc, "", "  ")
}
