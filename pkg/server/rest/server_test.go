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
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-shiftsync/pkg/events"
	"github.com/jeremyhahn/go-shiftsync/pkg/server"
	"github.com/jeremyhahn/go-shiftsync/pkg/server/middleware"
	"github.com/jeremyhahn/go-shiftsync/pkg/server/ws"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
)

func TestDefaultServerConfig(t *testing.T) {
	config := DefaultServerConfig()

	assert.Equal(t, "0.0.0.0", config.Host)
	assert.Equal(t, 8080, config.Port)
	assert.True(t, config.EnableCORS)
	assert.True(t, config.EnableLogging)
	assert.True(t, config.EnableRequestID)
	assert.True(t, config.EnableAudit)
	assert.False(t, config.EnableRateLimit)
	assert.Equal(t, int64(server.MaxRequestBodySize), config.MaxRequestSize)
	assert.Equal(t, gin.ReleaseMode, config.Mode)
}

func TestNewServer(t *testing.T) {
	env := newTestEnv(t)

	t.Run("nil config uses defaults", func(t *testing.T) {
		srv, err := NewServer(HandlerConfig{Store: env.store, Registry: env.registry}, nil)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:8080", srv.Address())
		assert.NotNil(t, srv.Handler())
		gin.SetMode(gin.TestMode)
	})

	t.Run("custom address", func(t *testing.T) {
		srv, err := NewServer(HandlerConfig{Store: env.store, Registry: env.registry},
			&ServerConfig{Host: "127.0.0.1", Port: 9000, Mode: gin.TestMode})
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9000", srv.Address())
	})

	t.Run("missing store", func(t *testing.T) {
		_, err := NewServer(HandlerConfig{Registry: env.registry}, &ServerConfig{Mode: gin.TestMode})
		assert.Error(t, err)
	})
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/version", nil)
	assert.Len(t, w.Header().Get(middleware.RequestIDHeader), 36)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRateLimitEnabled(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) {
		c.EnableRateLimit = true
		c.RateLimitConfig = &middleware.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2, PerIP: true}
	})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/version", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/version", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/v1/version", nil).Code)
}

func TestServeEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- env.server.Serve(l) }()
	base := "http://" + l.Addr().String()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/api/v1/ws?client_id=e2e", nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello ws.Reply
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "e2e", hello.ClientID)
	require.Eventually(t, func() bool { return env.registry.GetClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	body, _ := json.Marshal(staff.CreateRequest{Name: "Dana", Type: staff.TypeTemporary})
	resp, err := http.Post(base+"/api/v1/staff", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event events.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, events.TopicStaffCreate, event.Type)
	assert.Equal(t, int64(1), event.Version)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
