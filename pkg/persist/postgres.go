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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS staff_members (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	position    TEXT NOT NULL DEFAULT '',
	department  TEXT NOT NULL DEFAULT '',
	staff_type  TEXT NOT NULL DEFAULT '',
	period      INTEGER NOT NULL DEFAULT 0,
	version     BIGINT NOT NULL DEFAULT 0,
	updated_at  TIMESTAMPTZ NOT NULL,
	clock       BIGINT NOT NULL,
	deleted     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS staff_members_period_idx ON staff_members (period) WHERE NOT deleted;
`

const postgresUpsert = `
INSERT INTO staff_members (id, name, position, department, staff_type, period, version, updated_at, clock, deleted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	position = EXCLUDED.position,
	department = EXCLUDED.department,
	staff_type = EXCLUDED.staff_type,
	period = EXCLUDED.period,
	version = EXCLUDED.version,
	updated_at = EXCLUDED.updated_at,
	clock = EXCLUDED.clock,
	deleted = FALSE
WHERE staff_members.clock < EXCLUDED.clock`

const postgresDelete = `
INSERT INTO staff_members (id, name, updated_at, clock, deleted)
VALUES ($1, '', $2, $3, TRUE)
ON CONFLICT (id) DO UPDATE SET
	deleted = TRUE,
	updated_at = EXCLUDED.updated_at,
	clock = EXCLUDED.clock
WHERE staff_members.clock < EXCLUDED.clock`

// Postgres persists staff members through a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger adapters.Logger
}

// NewPostgres connects to dsn and creates the schema if needed.
func NewPostgres(ctx context.Context, dsn string, logger adapters.Logger) (*Postgres, error) {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	p := &Postgres{pool: pool, logger: logger}
	if err := p.Ready(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("exec migration: %w", err)
	}
	logger.Info(ctx, "Connected to postgres",
		adapters.Field{Key: "host", Value: cfg.ConnConfig.Host},
		adapters.Field{Key: "database", Value: cfg.ConnConfig.Database})
	return p, nil
}

// Ready checks the connection.
func (p *Postgres) Ready(ctx context.Context) error {
	var one int
	return p.pool.QueryRow(ctx, "select 1").Scan(&one)
}

// Upsert implements Persister.
func (p *Postgres) Upsert(ctx context.Context, m *staff.Member, clock int64) error {
	_, err := p.pool.Exec(ctx, postgresUpsert,
		m.ID, m.Name, m.Position, m.Department, string(m.Type), m.Period, m.Version, m.UpdatedAt, clock)
	if err != nil {
		return fmt.Errorf("upsert staff %s: %w", m.ID, err)
	}
	return nil
}

// Delete implements Persister.
func (p *Postgres) Delete(ctx context.Context, id string, clock int64) error {
	if _, err := p.pool.Exec(ctx, postgresDelete, id, time.Now(), clock); err != nil {
		return fmt.Errorf("delete staff %s: %w", id, err)
	}
	return nil
}

// Load implements Persister.
func (p *Postgres) Load(ctx context.Context) ([]*staff.Member, int64, error) {
	var clock int64
	if err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(clock), 0) FROM staff_members`).Scan(&clock); err != nil {
		return nil, 0, fmt.Errorf("load clock: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
SELECT id, name, position, department, staff_type, period, version, updated_at
FROM staff_members WHERE NOT deleted ORDER BY id`)
	if err != nil {
		return nil, 0, fmt.Errorf("load staff: %w", err)
	}
	defer rows.Close()

	var members []*staff.Member
	for rows.Next() {
		var (
			m   staff.Member
			typ string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Position, &m.Department, &typ, &m.Period, &m.Version, &m.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan staff: %w", err)
		}
		m.Type = staff.Type(typ)
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("load staff: %w", err)
	}
	return members, clock, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
