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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/audit"
	"github.com/jeremyhahn/go-shiftsync/pkg/server/middleware"
	"github.com/jeremyhahn/go-shiftsync/pkg/validation"
)

// CORSMiddleware allows cross-origin requests from allowedOrigins. An empty
// list or "*" allows any origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Origin, Authorization, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware logs one line per request at a level chosen by status
func LoggingMiddleware(logger adapters.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []adapters.Field{
			{Key: "method", Value: c.Request.Method},
			{Key: "path", Value: validation.SanitizeForLog(c.Request.URL.Path)},
			{Key: "status", Value: status},
			{Key: "latency", Value: time.Since(start).String()},
			{Key: "client_ip", Value: c.ClientIP()},
			{Key: "request_id", Value: middleware.GetRequestIDFromGinContext(c)},
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "HTTP request completed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn(ctx, "HTTP request completed", fields...)
		default:
			logger.Info(ctx, "HTTP request completed", fields...)
		}
	}
}

// ErrorHandlingMiddleware turns a handler panic into a 500 response
func ErrorHandlingMiddleware(logger adapters.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "Panic recovered",
					adapters.Field{Key: "panic", Value: fmt.Sprint(r)},
					adapters.Field{Key: "path", Value: c.Request.URL.Path})
				RespondWithError(c, http.StatusInternalServerError, "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RequestSizeLimitMiddleware rejects request bodies larger than maxSize
func RequestSizeLimitMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength > maxSize {
				RespondWithError(c, http.StatusRequestEntityTooLarge, "Request entity too large")
				c.Abort()
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}

const principalKey = "principal"

// AuthenticationMiddleware authenticates every request except health checks
// and checks the principal may read (GET, HEAD) or write (anything else)
// the resource named by the first path segment after /api/v1.
func AuthenticationMiddleware(authenticator adapters.Authenticator, logger adapters.Logger, auditLogger audit.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasSuffix(path, "/health") {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		requestID := audit.GetRequestID(c)
		fail := func(code int, message, principal string, err error) {
			logger.Warn(ctx, "Authentication failed",
				adapters.ErrField(err),
				adapters.Field{Key: "path", Value: validation.SanitizeForLog(path)},
				adapters.Field{Key: "method", Value: c.Request.Method},
			)
			if auditLogger != nil {
				_ = auditLogger.LogAuthFailure(ctx, principal, c.ClientIP(), requestID, err.Error()) //nolint:errcheck
			}
			RespondWithError(c, code, message)
			c.Abort()
		}

		principal, err := authenticator.AuthenticateHTTP(ctx, c.Request)
		if err != nil {
			fail(http.StatusUnauthorized, "Unauthorized", "", err)
			return
		}

		action := adapters.ActionWrite
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			action = adapters.ActionRead
		}
		if err := authenticator.ValidatePermission(ctx, principal, resourceOf(path), action); err != nil {
			fail(http.StatusForbidden, "Forbidden", principal.ID, err)
			return
		}

		c.Set(principalKey, principal)
		if auditLogger != nil {
			_ = auditLogger.LogAuthSuccess(ctx, principal.ID, c.ClientIP(), requestID) //nolint:errcheck
		}
		c.Next()
	}
}

// GetPrincipal returns the principal stored by AuthenticationMiddleware.
func GetPrincipal(c *gin.Context) *adapters.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(*adapters.Principal); ok {
			return p
		}
	}
	return nil
}

func resourceOf(path string) string {
	rest := strings.TrimPrefix(strings.Trim(path, "/"), "api/v1")
	resource, _, _ := strings.Cut(strings.TrimPrefix(rest, "/"), "/")
	return resource
}
