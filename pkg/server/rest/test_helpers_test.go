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

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/audit"
	"github.com/jeremyhahn/go-shiftsync/pkg/clients"
	"github.com/jeremyhahn/go-shiftsync/pkg/conflict"
	"github.com/jeremyhahn/go-shiftsync/pkg/metrics"
	"github.com/jeremyhahn/go-shiftsync/pkg/server/ws"
	"github.com/jeremyhahn/go-shiftsync/pkg/state"
)

type recordingAuditLogger struct {
	audit.NoOpAuditLogger
	mu        sync.Mutex
	mutations []audit.EventType
	results   []audit.Result
	resolves  []string
}

func (r *recordingAuditLogger) LogStaffMutation(ctx context.Context, eventType audit.EventType, staffID, ipAddress, requestID string, clock int64, result audit.Result, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = append(r.mutations, eventType)
	r.results = append(r.results, result)
	return nil
}

func (r *recordingAuditLogger) LogConflictResolution(ctx context.Context, staffID, strategy, ipAddress, requestID string, conflicts int, result audit.Result, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves = append(r.resolves, strategy)
	return nil
}

type testEnv struct {
	server   *Server
	store    *state.Manager
	registry *clients.Manager
	resolver *conflict.Resolver
	metrics  *metrics.Metrics
	audit    *recordingAuditLogger
}

func newTestEnv(t *testing.T, configure ...func(*ServerConfig)) *testEnv {
	t.Helper()

	m := metrics.NewMetrics()
	registry := clients.NewManager(clients.Config{Metrics: m})
	t.Cleanup(registry.Close)
	store := state.NewManager(state.Config{Registry: registry, Metrics: m})
	resolver := conflict.NewResolver(conflict.LastWriterWins, nil)
	auditLogger := &recordingAuditLogger{}

	config := DefaultServerConfig()
	config.Mode = gin.TestMode
	config.Logger = adapters.NewNoOpLogger()
	config.AuditLogger = auditLogger
	for _, fn := range configure {
		fn(config)
	}

	srv, err := NewServer(HandlerConfig{
		Store:    store,
		Registry: registry,
		Resolver: resolver,
		Metrics:  m,
		WebSocket: ws.NewHandler(ws.Config{
			Registry:   registry,
			Subscriber: store,
		}),
	}, config)
	require.NoError(t, err)

	return &testEnv{
		server:   srv,
		store:    store,
		registry: registry,
		resolver: resolver,
		metrics:  m,
		audit:    auditLogger,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func ptr[T any](v T) *T { return &v }

var _ http.Handler = (*ws.Handler)(nil)
