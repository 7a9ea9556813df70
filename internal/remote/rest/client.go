// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package rest is the remote backend for hosted PostgREST projects.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sigil-dev/ledger/internal/remote"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// DefaultTimeout bounds each HTTP round trip when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const restPath = "/rest/v1/"

func init() {
	remote.RegisterBackend("rest", func(_ context.Context, cfg *remote.Config) (remote.Client, error) {
		return New(cfg.URL, cfg.APIKey, cfg.Timeout, cfg.Tokens)
	})
}

var _ remote.Client = (*Client)(nil)

// Client issues table requests against {baseURL}/rest/v1.
type Client struct {
	baseURL string
	apiKey  string
	tokens  remote.TokenSource
	http    *http.Client
}

// New creates a client for the project at baseURL. tokens may be nil, in
// which case the API key is also sent as the bearer token.
func New(baseURL, apiKey string, timeout time.Duration, tokens remote.TokenSource) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ledgererr.New(ledgererr.CodeRemoteRequestInvalid, "rest backend requires an http(s) remote.url",
			ledgererr.Field("url", baseURL))
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// SetHTTPClient overrides the transport (for testing).
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

func (c *Client) Do(ctx context.Context, req remote.Request) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	if req.Filter != nil {
		q.Set(req.Filter.Column, "eq."+formatValue(req.Filter.Value))
	}

	var (
		method string
		body   io.Reader
	)
	switch req.Op {
	case remote.OpSelect:
		method = http.MethodGet
		q.Set("select", "*")
		if req.Limit > 0 {
			q.Set("limit", strconv.Itoa(req.Limit))
		}
	case remote.OpInsert, remote.OpUpdate:
		method = http.MethodPost
		if req.Op == remote.OpUpdate {
			method = http.MethodPatch
		}
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, ledgererr.Wrap(err, ledgererr.CodeRemoteRequestInvalid, "encoding request body", ledgererr.FieldTable(req.Table))
		}
		body = bytes.NewReader(data)
	}

	endpoint := c.baseURL + restPath + req.Table
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeRemoteRequestInvalid, "building request", ledgererr.FieldTable(req.Table))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Prefer", "return=representation")
	}
	if err := c.authorize(ctx, httpReq); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeRemoteConnectFailure, "remote request failed", ledgererr.FieldTable(req.Table))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeRemoteConnectFailure, "reading response", ledgererr.FieldTable(req.Table))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, raw)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(`[]`), nil
	}
	if !json.Valid(raw) {
		return nil, ledgererr.New(ledgererr.CodeRemoteResponseInvalid, "response is not JSON", ledgererr.FieldTable(req.Table))
	}
	return raw, nil
}

// Reconnect drops pooled connections; the next request dials afresh.
func (c *Client) Reconnect(context.Context) error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) authorize(ctx context.Context, r *http.Request) error {
	if c.apiKey != "" {
		r.Header.Set("apikey", c.apiKey)
	}
	bearer := c.apiKey
	if c.tokens != nil {
		tok, err := c.tokens.AccessToken(ctx)
		switch {
		case err == nil && tok != "":
			bearer = tok
		case err != nil && !ledgererr.IsNotFound(err):
			return err
		}
	}
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	return nil
}

// decodeError builds a *remote.Error from a PostgREST error body. Bodies
// that are not PostgREST errors still carry the status.
func decodeError(status int, raw []byte) error {
	e := &remote.Error{}
	if err := json.Unmarshal(raw, e); err != nil || (e.Code == "" && e.Message == "") {
		var alt struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
			Msg         string `json:"msg"`
		}
		_ = json.Unmarshal(raw, &alt)
		e = &remote.Error{Message: firstNonEmpty(alt.Description, alt.Msg, alt.Error, http.StatusText(status))}
	}
	e.Status = status
	return e
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
