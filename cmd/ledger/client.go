// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by commands that
// talk to a running server. Overridden in tests.
var defaultHTTPClient = &http.Client{
	// Retry and reset hold the request open across backoff.
	Timeout: 2 * time.Minute,
}

// apiClient provides HTTP access to a running ledger server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// newAPIClient creates a client targeting the given host:port address.
func newAPIClient(addr string) *apiClient {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		http:    defaultHTTPClient,
	}
}

func (c *apiClient) getJSON(path string, dest any) error {
	return c.do(http.MethodGet, path, dest)
}

func (c *apiClient) postJSON(path string, dest any) error {
	return c.do(http.MethodPost, path, dest)
}

func (c *apiClient) deleteJSON(path string, dest any) error {
	return c.do(http.MethodDelete, path, dest)
}

// do sends a bodiless request and decodes the JSON response into dest.
// Returns CodeCLIServerNotRunning on connection refused.
func (c *apiClient) do(method, path string, dest any) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return ledgererr.Errorf(ledgererr.CodeCLIRequestFailure, "building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return ledgererr.New(ledgererr.CodeCLIServerNotRunning, "ledger server is not running (connection refused)")
		}
		return ledgererr.Errorf(ledgererr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ledgererr.Errorf(ledgererr.CodeCLIRequestFailure, "server returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return ledgererr.Errorf(ledgererr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
