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

// Package snapshot captures point-in-time copies of the record store and
// exports them to a local directory or an S3 bucket.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
)

// Source is anything that can produce a consistent copy of the store.
type Source interface {
	Snapshot() ([]*staff.Member, int64)
}

// Document is a serialized snapshot.
type Document struct {
	Clock   int64           `json:"clock"`
	TakenAt time.Time       `json:"taken_at"`
	Staff   []*staff.Member `json:"staff"`
}

// Take captures src.
func Take(src Source) *Document {
	members, clock := src.Snapshot()
	if members == nil {
		members = []*staff.Member{}
	}
	return &Document{Clock: clock, TakenAt: time.Now().UTC(), Staff: members}
}

// Exporter writes a document somewhere and returns where it went.
type Exporter interface {
	Export(ctx context.Context, doc *Document) (string, error)
}

// Importer reads a document back by the location an Exporter returned.
type Importer interface {
	Import(ctx context.Context, location string) (*Document, error)
}

// Name returns the object name for doc: snapshot-<clock>-<uuid>.json.
func Name(doc *Document) string {
	return fmt.Sprintf("snapshot-%d-%s.json", doc.Clock, uuid.NewString())
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Decode reads a document.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &doc, nil
}

// FileExporter writes snapshots into a directory.
type FileExporter struct {
	Dir string
}

// Export implements Exporter.
func (e *FileExporter) Export(ctx context.Context, doc *Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.Dir, 0750); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(e.Dir, Name(doc))
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) // #nosec G304 -- dir comes from configuration
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}
	if err := Encode(f, doc); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return path, nil
}

// Import implements Importer. location is a file path.
func (e *FileExporter) Import(ctx context.Context, location string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(location) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Run takes and exports a snapshot every interval until ctx is done.
func Run(ctx context.Context, interval time.Duration, src Source, exporter Exporter, logger adapters.Logger) {
	if interval <= 0 || exporter == nil {
		return
	}
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastClock int64 = -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			doc := Take(src)
			if doc.Clock == lastClock {
				continue
			}
			location, err := exporter.Export(ctx, doc)
			if err != nil {
				logger.Error(ctx, "Snapshot export failed", adapters.ErrField(err))
				continue
			}
			lastClock = doc.Clock
			logger.Info(ctx, "Snapshot exported",
				adapters.Field{Key: "location", Value: location},
				adapters.Field{Key: "clock", Value: doc.Clock},
				adapters.Field{Key: "staff", Value: len(doc.Staff)})
		}
	}
}

func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
