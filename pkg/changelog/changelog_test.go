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

package changelog

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct {
	mu     sync.Mutex
	writes int
}

func (s *failingSink) Write(Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return errors.New("sink unavailable")
}

func (s *failingSink) Close() error { return nil }

func TestLogAppendPreservesOrder(t *testing.T) {
	log := New(Config{})
	for i := int64(1); i <= 5; i++ {
		log.Append(Entry{Type: EntryStaffUpdate, StaffID: "s1", Clock: i})
	}

	entries := log.Entries()
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Clock)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.Equal(t, 5, log.Len())
}

func TestLogEntriesIsPrefixStable(t *testing.T) {
	log := New(Config{})
	log.Append(Entry{Type: EntryStaffCreate, StaffID: "a", Clock: 1})
	first := log.Entries()

	log.Append(Entry{Type: EntryStaffDelete, StaffID: "a", Clock: 2})
	second := log.Entries()

	require.Len(t, second, 2)
	assert.Equal(t, first, second[:1])

	// Mutating a returned slice must not affect the log.
	second[0].StaffID = "changed"
	assert.Equal(t, "a", log.Entries()[0].StaffID)
}

func TestLogSince(t *testing.T) {
	log := New(Config{})
	for i := int64(1); i <= 4; i++ {
		log.Append(Entry{Type: EntryStaffUpdate, StaffID: "s", Clock: i})
	}

	assert.Len(t, log.Since(0), 4)
	since := log.Since(2)
	require.Len(t, since, 2)
	assert.Equal(t, int64(3), since[0].Clock)
	assert.Empty(t, log.Since(4))
}

func TestLogSinkFailureDoesNotFailAppend(t *testing.T) {
	sink := &failingSink{}
	log := New(Config{Sink: sink})
	log.Append(Entry{Type: EntryStaffCreate, StaffID: "a", Clock: 1})

	assert.Equal(t, 1, log.Len())
	assert.NoError(t, log.Close())
	assert.Equal(t, 1, sink.writes)
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	written []int64
	closed  bool
}

func (s *blockingSink) Write(e Entry) error {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, e.Clock)
	return nil
}

func (s *blockingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestLogAppendDoesNotWaitForSink(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	log := New(Config{Sink: sink})

	appended := make(chan struct{})
	go func() {
		for i := int64(1); i <= 3; i++ {
			log.Append(Entry{Type: EntryStaffUpdate, StaffID: "s1", Clock: i})
		}
		close(appended)
	}()

	select {
	case <-appended:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked on a stalled sink")
	}
	assert.Equal(t, 3, log.Len())

	close(sink.release)
	require.NoError(t, log.Close())
	assert.Equal(t, []int64{1, 2, 3}, sink.written)
	assert.True(t, sink.closed)

	log.Append(Entry{Type: EntryStaffUpdate, StaffID: "s1", Clock: 4})
	assert.Equal(t, 4, log.Len())
	assert.Len(t, sink.written, 3)
	require.NoError(t, log.Close())
}

func TestJSONLSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.jsonl")
	sink, err := NewJSONLSink(path, 0)
	require.NoError(t, err)

	log := New(Config{Sink: sink})
	log.Append(Entry{Type: EntryStaffCreate, StaffID: "a", Clock: 1})
	log.Append(Entry{Type: EntryStaffUpdate, StaffID: "a", Clock: 2})
	require.NoError(t, log.Close())

	entries, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, EntryStaffCreate, entries[0].Type)
	assert.Equal(t, int64(2), entries[1].Clock)

	assert.ErrorIs(t, sink.Write(Entry{}), ErrSinkClosed)
}

func TestJSONLSinkRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "changes.jsonl")
	sink, err := NewJSONLSink(path, 10)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Write(Entry{Type: EntryStaffCreate, StaffID: "a", Clock: 1}))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2, "expected the active file plus one rotated backup")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestReadFileSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.jsonl")
	content := `{"type":"staff_create","staff_id":"a","clock":1,"timestamp":"2025-01-01T00:00:00Z"}
not json
{"type":"staff_delete","staff_id":"a","clock":2,"timestamp":"2025-01-01T00:00:01Z"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	entries, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
