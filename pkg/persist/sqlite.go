// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-shiftsync.
//
// go-shiftsync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS staff_members (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	position    TEXT NOT NULL DEFAULT '',
	department  TEXT NOT NULL DEFAULT '',
	staff_type  TEXT NOT NULL DEFAULT '',
	period      INTEGER NOT NULL DEFAULT 0,
	version     INTEGER NOT NULL DEFAULT 0,
	updated_at  INTEGER NOT NULL,
	clock       INTEGER NOT NULL,
	deleted     INTEGER NOT NULL DEFAULT 0
)`

const sqliteUpsert = `
INSERT INTO staff_members (id, name, position, department, staff_type, period, version, updated_at, clock, deleted)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	position = excluded.position,
	department = excluded.department,
	staff_type = excluded.staff_type,
	period = excluded.period,
	version = excluded.version,
	updated_at = excluded.updated_at,
	clock = excluded.clock,
	deleted = 0
WHERE staff_members.clock < excluded.clock`

const sqliteDelete = `
INSERT INTO staff_members (id, name, updated_at, clock, deleted)
VALUES (?, '', ?, ?, 1)
ON CONFLICT (id) DO UPDATE SET
	deleted = 1,
	updated_at = excluded.updated_at,
	clock = excluded.clock
WHERE staff_members.clock < excluded.clock`

// SQLite persists staff members in a SQLite database. Timestamps are
// stored as Unix nanoseconds.
type SQLite struct {
	db     *sql.DB
	logger adapters.Logger
}

// NewSQLite opens the database at dsn (a file path or ":memory:") and
// creates the schema if needed.
func NewSQLite(ctx context.Context, dsn string, logger adapters.Logger) (*SQLite, error) {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec migration: %w", err)
	}
	logger.Info(ctx, "Opened sqlite database", adapters.Field{Key: "dsn", Value: dsn})
	return &SQLite{db: db, logger: logger}, nil
}

// Upsert implements Persister.
func (s *SQLite) Upsert(ctx context.Context, m *staff.Member, clock int64) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsert,
		m.ID, m.Name, m.Position, m.Department, string(m.Type), m.Period, m.Version, m.UpdatedAt.UnixNano(), clock)
	if err != nil {
		return fmt.Errorf("upsert staff %s: %w", m.ID, err)
	}
	return nil
}

// Delete implements Persister.
func (s *SQLite) Delete(ctx context.Context, id string, clock int64) error {
	if _, err := s.db.ExecContext(ctx, sqliteDelete, id, time.Now().UnixNano(), clock); err != nil {
		return fmt.Errorf("delete staff %s: %w", id, err)
	}
	return nil
}

// Load implements Persister.
func (s *SQLite) Load(ctx context.Context) ([]*staff.Member, int64, error) {
	var clock int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(clock), 0) FROM staff_members`).Scan(&clock); err != nil {
		return nil, 0, fmt.Errorf("load clock: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, position, department, staff_type, period, version, updated_at
FROM staff_members WHERE deleted = 0 ORDER BY id`)
	if err != nil {
		return nil, 0, fmt.Errorf("load staff: %w", err)
	}
	defer rows.Close()

	var members []*staff.Member
	for rows.Next() {
		var (
			m       staff.Member
			typ     string
			updated int64
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Position, &m.Department, &typ, &m.Period, &m.Version, &updated); err != nil {
			return nil, 0, fmt.Errorf("scan staff: %w", err)
		}
		m.Type = staff.Type(typ)
		m.UpdatedAt = time.Unix(0, updated).UTC()
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("load staff: %w", err)
	}
	return members, clock, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
