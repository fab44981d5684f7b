// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default connection attempts made by Open before giving up.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = time.Second
)

// OpenOptions tunes Open. The zero value uses the defaults.
type OpenOptions struct {
	MaxConns int32
	Attempts uint64
	Backoff  time.Duration
}

// Open creates a pgx pool for databaseURL and waits until the server
// answers a ping. Transient failures are retried with a constant backoff.
func Open(ctx context.Context, databaseURL string, opts OpenOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.Attempts == 0 {
		opts.Attempts = DefaultConnectAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultConnectBackoff
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.Attempts-1, retry.NewConstant(opts.Backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", opts.Attempts).
			Wrap(err)
	}
	return pool, nil
}
