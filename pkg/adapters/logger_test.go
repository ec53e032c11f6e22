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

package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel(" WARNING "))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("info"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestDefaultLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, DebugLevel)

	logger.Info(context.Background(), "client connected",
		Field{Key: "client_id", Value: "c1"})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "client connected", record["msg"])
	assert.Equal(t, "c1", record["client_id"])
}

func TestDefaultLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, WarnLevel)
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	assert.Empty(t, buf.String())

	logger.Warn(ctx, "warn")
	assert.Contains(t, buf.String(), `"msg":"warn"`)

	buf.Reset()
	logger.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, logger.GetLevel())
	logger.Debug(ctx, "debug now")
	assert.Contains(t, buf.String(), "debug now")
}

func TestDefaultLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, InfoLevel)
	child := base.WithFields(Field{Key: "component", Value: "state"})

	child.Error(context.Background(), "write failed", ErrField(errors.New("boom")))
	out := buf.String()
	assert.Contains(t, out, `"component":"state"`)
	assert.Contains(t, out, `"error":"boom"`)

	// Level changes on the parent apply to derived loggers.
	buf.Reset()
	base.SetLevel(ErrorLevel)
	child.Warn(context.Background(), "suppressed")
	assert.Empty(t, strings.TrimSpace(buf.String()))
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	ctx := context.Background()
	logger.Debug(ctx, "x")
	logger.Info(ctx, "x")
	logger.Warn(ctx, "x")
	logger.Error(ctx, "x")
	assert.Same(t, logger, logger.WithFields(Field{Key: "k", Value: 1}))
	logger.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, logger.GetLevel())
}
