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
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultMaxFileSize is the rotation threshold used when none is configured.
const DefaultMaxFileSize = 64 * 1024 * 1024

// ErrSinkClosed is returned by Write after Close.
var ErrSinkClosed = errors.New("change log sink closed")

// JSONLSink appends entries to a JSON Lines file, one entry per line, and
// rotates the file to <path>.<unix-timestamp> once it reaches maxSize.
// Rotation only affects the file; the in-memory Log keeps every entry.
type JSONLSink struct {
	mu       sync.Mutex
	file     *os.File
	filePath string
	maxSize  int64
}

// NewJSONLSink opens (or creates) the file at filePath for appending.
func NewJSONLSink(filePath string, maxSize int64) (*JSONLSink, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	file, err := openAppend(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open change log file: %w", err)
	}
	return &JSONLSink{
		file:     file,
		filePath: filePath,
		maxSize:  maxSize,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 -- path comes from configuration
}

// Write appends entry as one JSON line and syncs the file.
func (s *JSONLSink) Write(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrSinkClosed
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() >= s.maxSize {
		return s.rotate()
	}
	return nil
}

// Rotate forces a rotation of the current file.
func (s *JSONLSink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrSinkClosed
	}
	return s.rotate()
}

// rotate must be called with mu held.
func (s *JSONLSink) rotate() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close file for rotation: %w", err)
	}

	backupPath := fmt.Sprintf("%s.%d", s.filePath, time.Now().UnixNano())
	renameErr := os.Rename(s.filePath, backupPath)

	// Reopen in both cases so later writes still land somewhere.
	file, err := openAppend(s.filePath)
	if err != nil {
		s.file = nil
		return fmt.Errorf("failed to reopen change log file: %w", err)
	}
	s.file = file

	if renameErr != nil {
		return fmt.Errorf("failed to rename file: %w", renameErr)
	}
	return nil
}

// Close closes the file. Further writes return ErrSinkClosed.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadFile reads every entry from a JSONL change log file. Malformed lines
// are skipped.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxCapacity)

	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning change log: %w", err)
	}
	return entries, nil
}
