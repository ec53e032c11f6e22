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

// Package changelog provides the append-only audit trail of store mutations.
package changelog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
)

// EntryType is the kind of mutation recorded.
type EntryType string

const (
	EntryStaffCreate EntryType = "staff_create"
	EntryStaffUpdate EntryType = "staff_update"
	EntryStaffDelete EntryType = "staff_delete"
)

// Entry is a single change log record. Entries are never modified once appended.
type Entry struct {
	Type      EntryType `json:"type"`
	StaffID   string    `json:"staff_id"`
	Clock     int64     `json:"clock"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives a copy of every appended entry, e.g. a JSONL file.
type Sink interface {
	Write(entry Entry) error
	Close() error
}

// Config configures a Log.
type Config struct {
	// Sink is optional. Entries reach it from a background writer in append
	// order. Sink failures are logged and never fail an append.
	Sink   Sink
	Logger adapters.Logger
}

// Log is an in-memory, append-only, ordered change log. It is safe for
// concurrent use; callers that need the append order to match a global
// clock must serialize their appends (the record store appends under its
// own lock). Append never waits on the sink.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	sink    Sink
	logger  adapters.Logger

	pendingMu sync.Mutex
	pending   []Entry
	closed    bool
	wake      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New creates an empty change log and starts the sink writer when a sink
// is configured.
func New(config Config) *Log {
	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}
	l := &Log{
		sink:   config.Sink,
		logger: config.Logger,
	}
	if l.sink != nil {
		l.wake = make(chan struct{}, 1)
		l.done = make(chan struct{})
		l.wg.Add(1)
		go l.writer()
	}
	return l
}

// Append records entry. A zero Timestamp is set to now.
func (l *Log) Append(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	if l.sink == nil {
		return
	}
	l.pendingMu.Lock()
	if l.closed {
		l.pendingMu.Unlock()
		return
	}
	l.pending = append(l.pending, entry)
	l.pendingMu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Log) writer() {
	defer l.wg.Done()
	for {
		select {
		case <-l.wake:
			l.drain()
		case <-l.done:
			l.drain()
			return
		}
	}
}

func (l *Log) drain() {
	for {
		l.pendingMu.Lock()
		batch := l.pending
		l.pending = nil
		l.pendingMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, entry := range batch {
			if err := l.sink.Write(entry); err != nil {
				l.logger.Warn(context.Background(), "Change log sink write failed",
					adapters.Field{Key: "clock", Value: entry.Clock},
					adapters.Field{Key: "staff_id", Value: entry.StaffID},
					adapters.ErrField(err))
			}
		}
	}
}

// Entries returns a copy of every entry in append order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Since returns the entries whose clock is strictly greater than clock.
func (l *Log) Since(clock int64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Clock > clock
	})
	out := make([]Entry, len(l.entries)-idx)
	copy(out, l.entries[idx:])
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close writes any entries still queued for the sink and closes it.
// Entries appended afterwards stay in memory only.
func (l *Log) Close() error {
	if l.sink == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		l.pendingMu.Lock()
		l.closed = true
		l.pendingMu.Unlock()
		close(l.done)
		l.wg.Wait()
		l.closeErr = l.sink.Close()
	})
	return l.closeErr
}
