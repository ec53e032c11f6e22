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

package cli

import (
	"context"
	"fmt"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/common"
	"github.com/jeremyhahn/go-shiftsync/pkg/config"
	"github.com/jeremyhahn/go-shiftsync/pkg/persist"
	"github.com/jeremyhahn/go-shiftsync/pkg/snapshot"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
	"github.com/jeremyhahn/go-shiftsync/pkg/validation"
)

// NewSnapshotStore returns the S3 store when a bucket is configured and the
// directory store otherwise.
func NewSnapshotStore(ctx context.Context, cfg config.SnapshotConfig) (SnapshotStore, error) {
	if cfg.Bucket == "" {
		return &snapshot.FileExporter{Dir: cfg.Dir}, nil
	}
	s, err := snapshot.NewS3Exporter(ctx, snapshot.S3Config{
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		PathStyle: cfg.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 snapshot store: %w", err)
	}
	return s, nil
}

type loadedState struct {
	members []*staff.Member
	clock   int64
}

func (s loadedState) Snapshot() ([]*staff.Member, int64) { return s.members, s.clock }

// ExportSnapshot reads the persisted store and exports it through snapshots.
func ExportSnapshot(ctx context.Context, cfg *config.Config, snapshots snapshot.Exporter, logger adapters.Logger) (string, *snapshot.Document, error) {
	p, err := openPersister(ctx, cfg, logger)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = p.Close() }()

	members, clock, err := p.Load(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("load persisted staff: %w", err)
	}
	doc := snapshot.Take(loadedState{members: members, clock: clock})
	location, err := snapshots.Export(ctx, doc)
	if err != nil {
		return "", nil, err
	}
	return location, doc, nil
}

// RestoreSnapshot replaces the persisted store with the snapshot at
// location. Restored rows and tombstones are stamped with a clock past both
// the snapshot and the stored state so they take precedence. The returned
// document carries that clock.
func RestoreSnapshot(ctx context.Context, cfg *config.Config, snapshots snapshot.Importer, location string, logger adapters.Logger) (*snapshot.Document, error) {
	if location == "" {
		return nil, ErrSnapshotLocationRequired
	}
	doc, err := snapshots.Import(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("import snapshot %s: %w", location, err)
	}

	p, err := openPersister(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.Close() }()

	current, stored, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persisted staff: %w", err)
	}
	clock, err := writeSnapshot(ctx, p, current, stored, doc)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", location, err)
	}
	doc.Clock = clock
	return doc, nil
}

// writeSnapshot replaces current with the snapshot members in p and returns
// the clock the rows and tombstones were stamped with.
func writeSnapshot(ctx context.Context, p persist.Persister, current []*staff.Member, stored int64, doc *snapshot.Document) (int64, error) {
	for _, m := range doc.Staff {
		if m == nil {
			return 0, common.Validation("id", "snapshot member has no id")
		}
		if err := validation.ValidateStaffID(m.ID); err != nil {
			return 0, err
		}
	}
	clock := max(stored, doc.Clock) + 1

	keep := make(map[string]bool, len(doc.Staff))
	for _, m := range doc.Staff {
		keep[m.ID] = true
		if err := p.Upsert(ctx, m, clock); err != nil {
			return 0, fmt.Errorf("restore %s: %w", m.ID, err)
		}
	}
	for _, m := range current {
		if keep[m.ID] {
			continue
		}
		if err := p.Delete(ctx, m.ID, clock); err != nil {
			return 0, fmt.Errorf("remove %s: %w", m.ID, err)
		}
	}
	return clock, nil
}

func openPersister(ctx context.Context, cfg *config.Config, logger adapters.Logger) (persist.Persister, error) {
	p, err := persist.Open(ctx, cfg.Persist.Driver, cfg.Persist.DSN, logger)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPersistenceRequired
	}
	return p, nil
}
