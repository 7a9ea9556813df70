// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/sigil-dev/ledger/internal/cache"
	"github.com/sigil-dev/ledger/internal/ledger"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/sigil-dev/ledger/pkg/health"
	"github.com/sigil-dev/ledger/pkg/types"
)

// RegisterLedger sets the data service and registers the REST routes.
func (s *Server) RegisterLedger(svc *ledger.Service) {
	s.ledger = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Entity endpoints. Static segments take precedence over {kind}.
	huma.Register(s.api, huma.Operation{
		OperationID: "get-summary",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{userId}/summary",
		Summary:     "Financial summary and ratios",
		Tags:        []string{"entities"},
	}, s.handleSummary)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-entity",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{userId}/{kind}",
		Summary:     "Read one entity kind, cache first",
		Tags:        []string{"entities"},
	}, s.handleGetEntity)

	huma.Register(s.api, huma.Operation{
		OperationID: "put-entity",
		Method:      http.MethodPut,
		Path:        "/api/v1/users/{userId}/{kind}",
		Summary:     "Write one record and invalidate the cached copy",
		Tags:        []string{"entities"},
	}, s.handlePutEntity)

	// Cache maintenance
	huma.Register(s.api, huma.Operation{
		OperationID: "clear-user-cache",
		Method:      http.MethodDelete,
		Path:        "/api/v1/users/{userId}/cache",
		Summary:     "Remove every cached entity of one user",
		Tags:        []string{"cache"},
	}, s.handleClearUserCache)

	huma.Register(s.api, huma.Operation{
		OperationID: "purge-caches",
		Method:      http.MethodDelete,
		Path:        "/api/v1/cache",
		Summary:     "Remove every cached entity and clear error flags",
		Tags:        []string{"cache"},
	}, s.handlePurgeCaches)

	huma.Register(s.api, huma.Operation{
		OperationID: "cache-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/cache/stats",
		Summary:     "Cache size and entry count",
		Tags:        []string{"cache"},
	}, s.handleCacheStats)

	// Connection health
	huma.Register(s.api, huma.Operation{
		OperationID: "connection-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Connection health snapshot",
		Tags:        []string{"system"},
	}, s.handleStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "probe-connection",
		Method:      http.MethodPost,
		Path:        "/api/v1/status/probe",
		Summary:     "Probe the remote store now",
		Tags:        []string{"system"},
	}, s.handleProbe)

	huma.Register(s.api, huma.Operation{
		OperationID: "retry-connection",
		Method:      http.MethodPost,
		Path:        "/api/v1/status/retry",
		Summary:     "Probe with exponential backoff",
		Tags:        []string{"system"},
	}, s.handleRetry)

	huma.Register(s.api, huma.Operation{
		OperationID: "reset-connection",
		Method:      http.MethodPost,
		Path:        "/api/v1/status/reset",
		Summary:     "Clear session and flags, then reconnect",
		Tags:        []string{"system"},
	}, s.handleReset)
}

// --- Request/Response types for huma ---

type userInput struct {
	UserID string `path:"userId" doc:"User UUID"`
}

type entityInput struct {
	UserID string `path:"userId" doc:"User UUID"`
	Kind   string `path:"kind" doc:"Entity kind, e.g. assets or personal_info"`
	Retry  bool   `query:"retry" doc:"Retry failed remote reads with exponential backoff"`
}

type putEntityInput struct {
	UserID  string `path:"userId" doc:"User UUID"`
	Kind    string `path:"kind" doc:"Entity kind, e.g. assets or personal_info"`
	RawBody []byte
}

// EntityBody is the result of a cache-first read. Data is always present:
// an object or null for singular kinds, an array for list kinds.
type EntityBody struct {
	Kind      types.EntityKind `json:"kind"`
	Data      json.RawMessage  `json:"data"`
	Success   bool             `json:"success"`
	UsedCache bool             `json:"used_cache"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type entityOutput struct {
	Body EntityBody
}

type putEntityOutput struct {
	Body struct {
		Kind types.EntityKind `json:"kind"`
		Data json.RawMessage  `json:"data"`
	}
}

type summaryOutput struct {
	Body ledger.SummaryResult
}

type removedOutput struct {
	Body struct {
		Removed int `json:"removed"`
	}
}

type statsOutput struct {
	Body cache.Stats
}

type statusOutput struct {
	Body health.Status
}

type retryInput struct {
	MaxAttempts int `query:"max_attempts" default:"3" minimum:"1" maximum:"10"`
}

type recoveryOutput struct {
	Body struct {
		Recovered bool          `json:"recovered"`
		Status    health.Status `json:"status"`
	}
}

// --- Handlers ---

func (s *Server) service() (*ledger.Service, error) {
	if s.ledger == nil {
		return nil, huma.Error503ServiceUnavailable("ledger service not configured")
	}
	return s.ledger, nil
}

func parseUser(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, huma.Error400BadRequest("userId must be a non-nil UUID")
	}
	return id, nil
}

func parseEntity(userRaw, kindRaw string) (uuid.UUID, types.EntityKind, error) {
	id, err := parseUser(userRaw)
	if err != nil {
		return uuid.Nil, "", err
	}
	kind, err := types.ParseEntityKind(kindRaw)
	if err != nil {
		return uuid.Nil, "", apiError("unknown entity kind",
			ledgererr.New(ledgererr.CodeServerEntityNotFound, "unknown entity kind", ledgererr.FieldKind(kindRaw)))
	}
	return id, kind, nil
}

// apiError maps a coded error to an HTTP error.
func apiError(msg string, err error) error {
	status := ledgererr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error(msg, "error", err)
	}
	return huma.NewError(status, msg, err)
}

func (s *Server) handleGetEntity(ctx context.Context, input *entityInput) (*entityOutput, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	userID, kind, err := parseEntity(input.UserID, input.Kind)
	if err != nil {
		return nil, err
	}

	res := svc.Raw(ctx, userID, kind, input.Retry)
	body := EntityBody{
		Kind:      kind,
		Data:      res.Data,
		Success:   res.Success,
		UsedCache: res.UsedCache,
		ErrorKind: string(res.Kind()),
	}
	if res.Err != nil {
		body.Error = res.Err.Error()
	}
	return &entityOutput{Body: body}, nil
}

func (s *Server) handlePutEntity(ctx context.Context, input *putEntityInput) (*putEntityOutput, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	userID, kind, err := parseEntity(input.UserID, input.Kind)
	if err != nil {
		return nil, err
	}

	data, err := svc.Save(ctx, userID, kind, input.RawBody)
	if err != nil {
		if ledgererr.IsInvalidInput(err) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, huma.Error502BadGateway("remote write failed", err)
	}

	out := &putEntityOutput{}
	out.Body.Kind = kind
	out.Body.Data = data
	return out, nil
}

func (s *Server) handleSummary(ctx context.Context, input *userInput) (*summaryOutput, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	userID, err := parseUser(input.UserID)
	if err != nil {
		return nil, err
	}
	return &summaryOutput{Body: svc.Summary(ctx, userID)}, nil
}

func (s *Server) handleClearUserCache(ctx context.Context, input *userInput) (*removedOutput, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	userID, err := parseUser(input.UserID)
	if err != nil {
		return nil, err
	}
	n, err := svc.ClearUserCache(ctx, userID)
	if err != nil {
		return nil, apiError("clearing user cache", err)
	}
	out := &removedOutput{}
	out.Body.Removed = n
	return out, nil
}

func (s *Server) handlePurgeCaches(ctx context.Context, _ *struct{}) (*removedOutput, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	n, err := svc.PurgeAllCaches(ctx)
	if err != nil {
		return nil, apiError("purging caches", err)
	}
	out := &removedOutput{}
	out.Body.Removed = n
	return out, nil
}

func (s *Server) handleCacheStats(ctx context.Context, _ *struct{}) (*statsOutput, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	st, err := svc.GetCacheStats(ctx)
	if err != nil {
		return nil, apiError("reading cache stats", err)
	}
	return &statsOutput{Body: st}, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	if m := svc.Monitor(); m != nil {
		return &statusOutput{Body: m.Status(ctx)}, nil
	}
	return &statusOutput{Body: health.Status{State: health.StateUnknown}}, nil
}

func (s *Server) handleProbe(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	return &statusOutput{Body: svc.CheckDatabaseHealth(ctx)}, nil
}

func (s *Server) handleRetry(ctx context.Context, input *retryInput) (*recoveryOutput, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	m := svc.Monitor()
	if m == nil {
		return nil, huma.Error503ServiceUnavailable("connection monitor not configured")
	}
	out := &recoveryOutput{}
	out.Body.Recovered = m.RetryWithBackoff(ctx, input.MaxAttempts)
	out.Body.Status = m.Status(ctx)
	return out, nil
}

func (s *Server) handleReset(ctx context.Context, _ *struct{}) (*recoveryOutput, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	m := svc.Monitor()
	if m == nil {
		return nil, huma.Error503ServiceUnavailable("connection monitor not configured")
	}
	out := &recoveryOutput{}
	out.Body.Recovered = m.FullReset(ctx)
	out.Body.Status = m.Status(ctx)
	return out, nil
}
