// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package session keeps the remote-store session credential in the OS keyring.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name used when none is configured.
const DefaultService = "ledger"

const (
	keyAccess  = "access_token"
	keyRefresh = "refresh_token"
)

// expirySkew refreshes tokens slightly before they actually expire.
const expirySkew = 30 * time.Second

// Tokens is an access/refresh token pair.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"` // zero when the access token carries no exp claim
}

// Refresher exchanges a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Store reads and writes the session in the OS keyring. On macOS it uses
// Keychain, on Linux secret-service (D-Bus), and on Windows the Credential
// Manager.
type Store struct {
	service   string
	refreshMu sync.Mutex // held across load, exchange and save of a refresh
	mu        sync.Mutex // guards refresher and nowFunc
	refresher Refresher
	nowFunc   func() time.Time
}

// NewStore returns a Store under the given keyring service.
func NewStore(service string) *Store {
	if service == "" {
		service = DefaultService
	}
	return &Store{service: service, nowFunc: time.Now}
}

// SetRefresher installs the token refresher. Without one, Refresh fails.
func (s *Store) SetRefresher(r Refresher) {
	s.mu.Lock()
	s.refresher = r
	s.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	s.nowFunc = fn
	s.mu.Unlock()
}

// Save stores the token pair, replacing any previous session.
func (s *Store) Save(_ context.Context, t Tokens) error {
	if strings.TrimSpace(t.AccessToken) == "" {
		return ledgererr.New(ledgererr.CodeSessionInvalidInput, "session: access token must not be empty")
	}
	if err := keyring.Set(s.service, keyAccess, t.AccessToken); err != nil {
		return ledgererr.Wrapf(err, ledgererr.CodeSessionStoreFailure, "storing access token in %s", s.service)
	}
	if t.RefreshToken == "" {
		if err := keyring.Delete(s.service, keyRefresh); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return ledgererr.Wrapf(err, ledgererr.CodeSessionStoreFailure, "removing stale refresh token in %s", s.service)
		}
		return nil
	}
	if err := keyring.Set(s.service, keyRefresh, t.RefreshToken); err != nil {
		return ledgererr.Wrapf(err, ledgererr.CodeSessionStoreFailure, "storing refresh token in %s", s.service)
	}
	return nil
}

// Load returns the stored session. It fails with session.credential.not_found
// when no access token is stored.
func (s *Store) Load(_ context.Context) (Tokens, error) {
	access, err := keyring.Get(s.service, keyAccess)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Tokens{}, ledgererr.Errorf(ledgererr.CodeSessionNotFound, "no session stored in %s", s.service)
		}
		return Tokens{}, ledgererr.Wrapf(err, ledgererr.CodeSessionStoreFailure, "reading access token from %s", s.service)
	}

	refresh, err := keyring.Get(s.service, keyRefresh)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return Tokens{}, ledgererr.Wrapf(err, ledgererr.CodeSessionStoreFailure, "reading refresh token from %s", s.service)
	}

	t := Tokens{AccessToken: access, RefreshToken: refresh}
	if exp, ok := Expiry(access); ok {
		t.ExpiresAt = exp
	}
	return t, nil
}

// Present reports whether a session credential is stored.
func (s *Store) Present(ctx context.Context) bool {
	_, err := s.Load(ctx)
	return err == nil
}

// AccessToken returns a usable access token, refreshing it first when it is
// about to expire and a refresh token is available. Concurrent callers
// share one refresh: the rest wait and pick up the stored result.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	t, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	if !s.expired(t) || t.RefreshToken == "" {
		return t.AccessToken, nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	t, err = s.Load(ctx)
	if err != nil {
		return "", err
	}
	if !s.expired(t) || t.RefreshToken == "" {
		return t.AccessToken, nil
	}
	fresh, err := s.refresh(ctx, t)
	if err != nil {
		slog.Warn("session refresh failed, using stored token", "error", err)
		return t.AccessToken, nil
	}
	return fresh.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new pair and stores it.
func (s *Store) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	t, err := s.Load(ctx)
	if err != nil {
		return err
	}
	_, err = s.refresh(ctx, t)
	return err
}

// refresh must be called with refreshMu held.
func (s *Store) refresh(ctx context.Context, t Tokens) (Tokens, error) {
	s.mu.Lock()
	r := s.refresher
	s.mu.Unlock()

	if r == nil {
		return Tokens{}, ledgererr.New(ledgererr.CodeSessionRefreshFailure, "no session refresher configured")
	}
	if t.RefreshToken == "" {
		return Tokens{}, ledgererr.New(ledgererr.CodeSessionRefreshFailure, "stored session has no refresh token")
	}

	fresh, err := r.Refresh(ctx, t.RefreshToken)
	if err != nil {
		return Tokens{}, err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = t.RefreshToken
	}
	if err := s.Save(ctx, fresh); err != nil {
		return Tokens{}, err
	}
	slog.Debug("session refreshed", "expires_at", fresh.ExpiresAt)
	return fresh, nil
}

// Clear removes the stored session. Clearing an empty store succeeds.
func (s *Store) Clear(_ context.Context) error {
	var errs []error
	for _, key := range []string{keyAccess, keyRefresh} {
		if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return ledgererr.Wrapf(errors.Join(errs...), ledgererr.CodeSessionStoreFailure, "clearing session in %s", s.service)
	}
	return nil
}

func (s *Store) expired(t Tokens) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	s.mu.Lock()
	now := s.nowFunc()
	s.mu.Unlock()
	return !now.Add(expirySkew).Before(t.ExpiresAt)
}

// Expiry reads the exp claim of a JWT without verifying its signature.
func Expiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
