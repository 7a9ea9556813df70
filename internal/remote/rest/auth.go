// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sigil-dev/ledger/internal/session"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

const tokenPath = "/auth/v1/token?grant_type=refresh_token"

var _ session.Refresher = (*Auth)(nil)

// Auth refreshes sessions against the project's token endpoint.
type Auth struct {
	baseURL string
	apiKey  string
	http    *http.Client
	nowFunc func() time.Time
}

// NewAuth creates a refresher for the project at baseURL.
func NewAuth(baseURL, apiKey string, timeout time.Duration) *Auth {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Auth{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		nowFunc: time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Refresh exchanges refreshToken for a new session.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (session.Tokens, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return session.Tokens{}, ledgererr.Wrap(err, ledgererr.CodeSessionRefreshFailure, "encoding refresh request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return session.Tokens{}, ledgererr.Wrap(err, ledgererr.CodeSessionRefreshFailure, "building refresh request")
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("apikey", a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return session.Tokens{}, ledgererr.Wrap(err, ledgererr.CodeSessionRefreshFailure, "refresh request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return session.Tokens{}, ledgererr.Wrap(decodeError(resp.StatusCode, raw), ledgererr.CodeSessionRefreshDenied, "refresh token rejected")
	case resp.StatusCode != http.StatusOK:
		return session.Tokens{}, ledgererr.Wrap(decodeError(resp.StatusCode, raw), ledgererr.CodeSessionRefreshFailure, "token endpoint error")
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil || tr.AccessToken == "" {
		return session.Tokens{}, ledgererr.New(ledgererr.CodeSessionRefreshFailure, "token endpoint returned no access token")
	}

	t := session.Tokens{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	switch {
	case tr.ExpiresAt > 0:
		t.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		t.ExpiresAt = a.nowFunc().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return t, nil
}
