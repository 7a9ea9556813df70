// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package remote

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrorKind is the single reason assigned to a failed remote call.
type ErrorKind string

const (
	KindRateLimit  ErrorKind = "rate_limit_error"
	KindSchema     ErrorKind = "schema_error"
	KindAuth       ErrorKind = "auth_error"
	KindConnection ErrorKind = "connection_error"
)

// Error is a structured error returned by the remote store. Both backends
// produce it: the REST backend from the response body, the Postgres backend
// from the server's error fields.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Status != 0 {
		b.WriteString(" (status ")
		b.WriteString(strconv.Itoa(e.Status))
		b.WriteString(")")
	}
	return b.String()
}

var (
	schemaCodes = []string{"pgrst106", "pgrst204", "pgrst205", "42p01", "42703", "3f000"}
	authCodes   = []string{"pgrst301", "pgrst302", "42501", "28p01", "28000"}

	rateLimitPhrases = []string{"rate limit", "too many requests"}
	authPhrases      = []string{"jwt", "auth", "permission", "unauthorized"}
	fetchPhrases     = []string{"failed to fetch", "connection refused", "no such host"}
)

// Classify assigns exactly one ErrorKind to err. Structured errors are
// matched in the order rate limit, schema, auth; anything else is a
// connection error. networkOutage is set only for unstructured transport
// failures. A nil error classifies as "".
func Classify(err error) (kind ErrorKind, networkOutage bool) {
	if err == nil {
		return "", false
	}

	var re *Error
	if !errors.As(err, &re) {
		return KindConnection, isTransportFailure(err)
	}

	code := strings.ToLower(strings.TrimSpace(re.Code))
	msg := strings.ToLower(re.Message)

	switch {
	case re.Status == 429 || code == "429" || containsAny(msg, rateLimitPhrases):
		return KindRateLimit, false
	case oneOf(code, schemaCodes) || strings.Contains(msg, "schema"):
		return KindSchema, false
	case re.Status == 401 || re.Status == 403 || oneOf(code, authCodes) || containsAny(msg, authPhrases):
		return KindAuth, false
	default:
		return KindConnection, false
	}
}

func isTransportFailure(err error) bool {
	var (
		urlErr *url.Error
		opErr  *net.OpError
		netErr net.Error
	)
	if errors.As(err, &urlErr) || errors.As(err, &opErr) || errors.As(err, &netErr) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), fetchPhrases)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
