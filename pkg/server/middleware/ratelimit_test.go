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

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
)

func limitedRouter(config *RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(config, adapters.NewNoOpLogger()))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func doFrom(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		router := limitedRouter(&RateLimitConfig{RequestsPerSecond: 10, Burst: 20})
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, doFrom(router, "10.0.0.1").Code)
		}
	})

	t.Run("blocks requests exceeding global limit", func(t *testing.T) {
		router := limitedRouter(&RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})
		assert.Equal(t, http.StatusOK, doFrom(router, "10.0.0.1").Code)
		assert.Equal(t, http.StatusOK, doFrom(router, "10.0.0.2").Code)

		w := doFrom(router, "10.0.0.3")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Burst"))
		assert.Contains(t, w.Body.String(), "rate limit exceeded")
	})

	t.Run("per-IP limits are independent", func(t *testing.T) {
		router := limitedRouter(&RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, PerIP: true})
		assert.Equal(t, http.StatusOK, doFrom(router, "10.0.0.1").Code)
		assert.Equal(t, http.StatusTooManyRequests, doFrom(router, "10.0.0.1").Code)
		assert.Equal(t, http.StatusOK, doFrom(router, "10.0.0.2").Code)
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		router := limitedRouter(nil)
		assert.Equal(t, http.StatusOK, doFrom(router, "10.0.0.1").Code)
	})
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(&RateLimitConfig{RequestsPerSecond: 1, Burst: 1, PerIP: true, IdleTTL: time.Minute})
	rl.now = func() time.Time { return now }

	rl.getLimiter("a")
	rl.getLimiter("b")
	assert.Equal(t, 2, rl.tracked())

	now = now.Add(30 * time.Second)
	rl.getLimiter("b")
	now = now.Add(45 * time.Second)
	rl.getLimiter("c")

	// a idle 75s is dropped; b idle 45s is kept
	assert.Equal(t, 2, rl.tracked())
	_, hasA := rl.clients["a"]
	assert.False(t, hasA)
}
