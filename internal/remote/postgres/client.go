// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sigil-dev/ledger/internal/remote"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func init() {
	remote.RegisterBackend("postgres", func(ctx context.Context, cfg *remote.Config) (remote.Client, error) {
		return Connect(ctx, cfg.DatabaseURL, cfg.MaxConns)
	})
}

var _ remote.Client = (*Client)(nil)

// Client talks to Postgres directly through gorm.
type Client struct {
	mu          sync.RWMutex
	db          *gorm.DB
	databaseURL string
	maxConns    int
	open        func(dsn string) gorm.Dialector
}

// Connect opens and pings a pooled connection.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*Client, error) {
	if databaseURL == "" {
		return nil, ledgererr.New(ledgererr.CodeRemoteRequestInvalid, "postgres backend requires remote.database_url")
	}
	c := &Client{databaseURL: databaseURL, maxConns: maxConns, open: postgres.Open}
	db, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.db = db
	return c, nil
}

// New wraps an existing gorm handle. Reconnect is a no-op ping for clients
// built this way.
func New(db *gorm.DB) *Client {
	return &Client{db: db}
}

func (c *Client) connect(ctx context.Context) (*gorm.DB, error) {
	db, err := gorm.Open(c.open(c.databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeRemoteConnectFailure, "opening postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeRemoteConnectFailure, "acquiring sql handle")
	}
	if c.maxConns > 0 {
		sqlDB.SetMaxOpenConns(c.maxConns)
		sqlDB.SetMaxIdleConns(max(c.maxConns/2, 1))
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, ledgererr.Wrap(translate(err), ledgererr.CodeRemoteConnectFailure, "pinging postgres")
	}
	slog.Info("postgres connected", "max_conns", c.maxConns)
	return db, nil
}

func (c *Client) handle() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Do runs req. Selects return the matching rows; writes echo the written row.
func (c *Client) Do(ctx context.Context, req remote.Request) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	db := c.handle()
	if db == nil {
		return nil, ledgererr.New(ledgererr.CodeRemoteConnectFailure, "postgres client is closed")
	}

	tx := db.WithContext(ctx).Table(req.Table)
	if req.Filter != nil {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: req.Filter.Column}, Value: req.Filter.Value})
	}

	switch req.Op {
	case remote.OpSelect:
		if req.Limit > 0 {
			tx = tx.Limit(req.Limit)
		}
		rows := []map[string]any{}
		if err := tx.Find(&rows).Error; err != nil {
			return nil, translate(err)
		}
		return encode(rows)

	case remote.OpInsert:
		row, err := toRow(req.Body)
		if err != nil {
			return nil, err
		}
		if err := tx.Create(row).Error; err != nil {
			return nil, translate(err)
		}
		return encode([]map[string]any{row})

	case remote.OpUpdate:
		row, err := toRow(req.Body)
		if err != nil {
			return nil, err
		}
		if err := tx.Updates(row).Error; err != nil {
			return nil, translate(err)
		}
		return encode([]map[string]any{row})
	}
	return nil, ledgererr.Errorf(ledgererr.CodeRemoteRequestInvalid, "unsupported op %q", req.Op)
}

// Reconnect replaces the pool with a fresh one.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.open == nil {
		db := c.handle()
		if db == nil {
			return ledgererr.New(ledgererr.CodeRemoteConnectFailure, "postgres client is closed")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return ledgererr.Wrap(err, ledgererr.CodeRemoteConnectFailure, "acquiring sql handle")
		}
		return translate(sqlDB.PingContext(ctx))
	}

	db, err := c.connect(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.db
	c.db = db
	c.mu.Unlock()

	if old != nil {
		if sqlDB, err := old.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate turns server-side errors into *remote.Error so they classify by
// SQLSTATE. Transport errors pass through untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &remote.Error{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}
	return err
}

func toRow(body any) (map[string]any, error) {
	if m, ok := body.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeRemoteRequestInvalid, "encoding row")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeRemoteRequestInvalid, "row must be a JSON object")
	}
	return m, nil
}

func encode(rows []map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeRemoteResponseInvalid, "encoding rows")
	}
	return raw, nil
}
