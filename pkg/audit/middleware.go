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

package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id in and out.
	RequestIDHeader = "X-Request-ID"

	contextKeyLogger    = "audit_logger"
	contextKeyRequestID = "request_id"
	contextKeyStart     = "audit_start_time"
)

// AuditMiddleware returns a gin middleware that writes one audit event per
// request after the handler chain completes. Health, metrics and websocket
// upgrade requests are skipped; the websocket transport audits connects and
// disconnects itself.
func AuditMiddleware(auditLogger AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skipAudit(path) {
			c.Next()
			return
		}

		requestID := c.GetString(contextKeyRequestID)
		if requestID == "" {
			requestID = c.GetHeader(RequestIDHeader)
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		start := time.Now()
		c.Set(contextKeyLogger, auditLogger)
		c.Set(contextKeyRequestID, requestID)
		c.Set(contextKeyStart, start)

		c.Next()

		status := c.Writer.Status()
		event := &AuditEvent{
			Timestamp:  start,
			EventType:  determineEventType(c.Request.Method, path, status),
			Resource:   path,
			StaffID:    c.Param("id"),
			Action:     c.Request.Method + " " + path,
			Result:     ResultSuccess,
			IPAddress:  c.ClientIP(),
			RequestID:  requestID,
			Method:     c.Request.Method,
			StatusCode: status,
			Duration:   time.Since(start),
		}
		if status >= http.StatusBadRequest {
			event.Result = ResultFailure
			if len(c.Errors) > 0 {
				event.ErrorMessage = c.Errors.String()
			}
		}
		_ = auditLogger.LogEvent(c.Request.Context(), event) //nolint:errcheck // audit failures never fail the request
	}
}

// GetAuditLogger retrieves the audit logger stored by AuditMiddleware.
func GetAuditLogger(c *gin.Context) AuditLogger {
	if v, ok := c.Get(contextKeyLogger); ok {
		if logger, ok := v.(AuditLogger); ok {
			return logger
		}
	}
	return NewNoOpAuditLogger()
}

// GetRequestID retrieves the request id for the current request.
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}

func skipAudit(path string) bool {
	for _, suffix := range []string{"/health", "/metrics", "/ws"} {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func determineEventType(method, path string, status int) EventType {
	switch {
	case strings.Contains(path, "/resolve"):
		return EventConflictResolved
	case strings.Contains(path, "/changelog"):
		return EventChangeLogRead
	case strings.Contains(path, "/staff"):
		hasID := strings.Count(strings.Trim(path, "/"), "/") >= 3
		switch method {
		case http.MethodPost:
			return EventStaffCreated
		case http.MethodPatch, http.MethodPut:
			if status == http.StatusConflict {
				return EventVersionConflict
			}
			return EventStaffUpdated
		case http.MethodDelete:
			return EventStaffDeleted
		case http.MethodGet:
			if hasID {
				return EventStaffAccessed
			}
			return EventStaffListed
		}
	}
	return EventOther
}
