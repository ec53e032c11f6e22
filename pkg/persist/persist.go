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

// Package persist provides optional write-through storage for the record
// store. Rows carry the global clock of their last mutation and writes only
// apply when their clock is newer, so out-of-order writes from concurrent
// workers converge on the latest state. Deletes are kept as tombstones.
package persist

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/common"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
)

// Driver names.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Persister stores staff members keyed by id.
type Persister interface {
	// Upsert stores m if clock is newer than the stored row's clock.
	Upsert(ctx context.Context, m *staff.Member, clock int64) error
	// Delete tombstones id if clock is newer than the stored row's clock.
	Delete(ctx context.Context, id string, clock int64) error
	// Load returns every live member and the highest clock seen, including tombstones.
	Load(ctx context.Context) ([]*staff.Member, int64, error)
	Close() error
}

// Open creates the persister for driver. DriverNone returns nil.
func Open(ctx context.Context, driver, dsn string, logger adapters.Logger) (Persister, error) {
	switch strings.ToLower(driver) {
	case "", DriverNone:
		return nil, nil
	case DriverPostgres, "pgx":
		p, err := NewPostgres(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case DriverSQLite:
		s, err := NewSQLite(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, common.Validation("persist.driver", fmt.Sprintf("unsupported driver %q", driver))
	}
}
