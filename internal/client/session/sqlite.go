// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package session

import (
	"context"
	"database/sql"
	"embed"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/samber/oops"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its filesystem and dialect in package state.
var gooseMu sync.Mutex

func runMigrations(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return oops.Code("SESSION_STORE_MIGRATE_FAILED").Wrap(err)
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return oops.Code("SESSION_STORE_MIGRATE_FAILED").Wrap(err)
	}
	return nil
}

// SQLiteStore keeps the slots in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the slot database at path and
// applies its migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("SESSION_STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code("SESSION_STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements SlotStore.
func (s *SQLiteStore) Load(ctx context.Context) (Slots, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot, value FROM session_slots`)
	if err != nil {
		return Slots{}, oops.Code("SESSION_STORE_READ_FAILED").Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var slots Slots
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Slots{}, oops.Code("SESSION_STORE_READ_FAILED").Wrap(err)
		}
		switch name {
		case SlotUser:
			slots.User = []byte(value)
		case SlotToken:
			slots.Token = value
		}
	}
	if err := rows.Err(); err != nil {
		return Slots{}, oops.Code("SESSION_STORE_READ_FAILED").Wrap(err)
	}
	return slots, nil
}

// Save implements SlotStore. Both slots are replaced in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, slots Slots) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("SESSION_STORE_WRITE_FAILED").Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	const upsert = `INSERT INTO session_slots (slot, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	for name, value := range map[string]string{SlotUser: string(slots.User), SlotToken: slots.Token} {
		if _, err = tx.ExecContext(ctx, upsert, name, value, now); err != nil {
			return oops.Code("SESSION_STORE_WRITE_FAILED").With("slot", name).Wrap(err)
		}
	}
	if err = tx.Commit(); err != nil {
		return oops.Code("SESSION_STORE_WRITE_FAILED").Wrap(err)
	}
	return nil
}

// Clear implements SlotStore.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_slots`); err != nil {
		return oops.Code("SESSION_STORE_WRITE_FAILED").Wrap(err)
	}
	return nil
}

var _ SlotStore = (*SQLiteStore)(nil)
