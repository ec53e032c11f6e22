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

// Package audit provides audit logging for staff record operations and
// client connections.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
)

// EventType represents the type of audit event
type EventType string

const (
	// EventStaffCreated indicates a staff member was created
	EventStaffCreated EventType = "STAFF_CREATED"

	// EventStaffUpdated indicates a staff member was updated
	EventStaffUpdated EventType = "STAFF_UPDATED"

	// EventStaffDeleted indicates a staff member was deleted
	EventStaffDeleted EventType = "STAFF_DELETED"

	// EventStaffAccessed indicates a staff member was read
	EventStaffAccessed EventType = "STAFF_ACCESSED"

	// EventStaffListed indicates staff members were listed
	EventStaffListed EventType = "STAFF_LISTED"

	// EventVersionConflict indicates an update lost an optimistic concurrency race
	EventVersionConflict EventType = "VERSION_CONFLICT"

	// EventConflictResolved indicates the conflict resolver was invoked
	EventConflictResolved EventType = "CONFLICT_RESOLVED"

	// EventChangeLogRead indicates the change log was read
	EventChangeLogRead EventType = "CHANGELOG_READ"

	// EventClientConnected indicates a realtime client connected
	EventClientConnected EventType = "CLIENT_CONNECTED"

	// EventClientDisconnected indicates a realtime client went away
	EventClientDisconnected EventType = "CLIENT_DISCONNECTED"

	// EventAuthFailure indicates a request failed authentication or authorization
	EventAuthFailure EventType = "AUTH_FAILURE"

	// EventAuthSuccess indicates a request authenticated
	EventAuthSuccess EventType = "AUTH_SUCCESS"

	// EventOther covers requests that fit no other category
	EventOther EventType = "OTHER"
)

// Result represents the outcome of an audited operation
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`

	// Principal is the authenticated caller, when known
	Principal string `json:"principal,omitempty"`

	// Resource identifies the target, e.g. staff/<id> or client/<id>
	Resource string `json:"resource,omitempty"`
	StaffID  string `json:"staff_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`

	// Action describes what was attempted
	Action string `json:"action"`
	Result Result `json:"result"`

	ErrorMessage string `json:"error_message,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	Method       string `json:"method,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`

	// Clock is the global clock after the mutation, when known
	Clock    int64         `json:"clock,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	// LogEvent logs a generic audit event
	LogEvent(ctx context.Context, event *AuditEvent) error

	// LogStaffMutation logs staff create/update/delete operations
	LogStaffMutation(ctx context.Context, eventType EventType, staffID, ipAddress, requestID string, clock int64, result Result, err error) error

	// LogConflictResolution logs a conflict resolver invocation
	LogConflictResolution(ctx context.Context, staffID, strategy, ipAddress, requestID string, conflicts int, result Result, err error) error

	// LogClientConnection logs realtime client connects and disconnects
	LogClientConnection(ctx context.Context, eventType EventType, clientID, ipAddress string) error

	// LogAuthFailure logs a rejected credential or permission
	LogAuthFailure(ctx context.Context, principal, ipAddress, requestID, reason string) error

	// LogAuthSuccess logs an accepted credential
	LogAuthSuccess(ctx context.Context, principal, ipAddress, requestID string) error

	SetLevel(level adapters.LogLevel)
	GetLevel() adapters.LogLevel
}

// OutputFormat specifies the format for audit log output
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Config holds configuration for the audit logger
type Config struct {
	// Enabled determines if audit logging is active
	Enabled bool

	// Format specifies the output format (JSON or text)
	Format OutputFormat

	// Level sets the minimum log level
	Level adapters.LogLevel

	// Output specifies where to write logs (defaults to stdout)
	Output io.Writer

	// IncludeMetadata determines if extra metadata should be logged
	IncludeMetadata bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Format:          FormatJSON,
		Level:           adapters.InfoLevel,
		Output:          os.Stdout,
		IncludeMetadata: true,
	}
}

// DefaultAuditLogger implements AuditLogger using slog
type DefaultAuditLogger struct {
	config *Config
	logger *slog.Logger
	level  atomic.Int32
}

// NewDefaultAuditLogger creates a new audit logger with default configuration
func NewDefaultAuditLogger() AuditLogger {
	return NewAuditLogger(DefaultConfig())
}

// NewAuditLogger creates a new audit logger with the specified configuration
func NewAuditLogger(config *Config) AuditLogger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(config.Output, opts)
	default:
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	a := &DefaultAuditLogger{
		config: config,
		logger: slog.New(handler),
	}
	a.level.Store(int32(config.Level))
	return a
}

// LogEvent logs a generic audit event
func (a *DefaultAuditLogger) LogEvent(ctx context.Context, event *AuditEvent) error {
	if !a.config.Enabled || event == nil {
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []slog.Attr{
		slog.Time("timestamp", event.Timestamp),
		slog.String("event_type", string(event.EventType)),
		slog.String("action", event.Action),
		slog.String("result", string(event.Result)),
	}

	optional := []struct{ key, value string }{
		{"principal", event.Principal},
		{"resource", event.Resource},
		{"staff_id", event.StaffID},
		{"client_id", event.ClientID},
		{"error", event.ErrorMessage},
		{"ip_address", event.IPAddress},
		{"request_id", event.RequestID},
		{"method", event.Method},
	}
	for _, o := range optional {
		if o.value != "" {
			attrs = append(attrs, slog.String(o.key, o.value))
		}
	}
	if event.StatusCode > 0 {
		attrs = append(attrs, slog.Int("status_code", event.StatusCode))
	}
	if event.Clock > 0 {
		attrs = append(attrs, slog.Int64("clock", event.Clock))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	if a.config.IncludeMetadata && len(event.Metadata) > 0 {
		metadataJSON, _ := json.Marshal(event.Metadata) //nolint:errcheck // marshaling simple map types is safe
		attrs = append(attrs, slog.String("metadata", string(metadataJSON)))
	}

	a.logger.LogAttrs(ctx, slog.LevelInfo, "Audit event: "+event.Action, attrs...)
	return nil
}

// LogStaffMutation logs staff create/update/delete operations
func (a *DefaultAuditLogger) LogStaffMutation(ctx context.Context, eventType EventType, staffID, ipAddress, requestID string, clock int64, result Result, err error) error {
	action := "modify_staff"
	switch eventType {
	case EventStaffCreated:
		action = "create_staff"
	case EventStaffUpdated, EventVersionConflict:
		action = "update_staff"
	case EventStaffDeleted:
		action = "delete_staff"
	}

	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Resource:  "staff/" + staffID,
		StaffID:   staffID,
		Action:    action,
		Result:    result,
		IPAddress: ipAddress,
		RequestID: requestID,
		Clock:     clock,
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return a.LogEvent(ctx, event)
}

// LogConflictResolution logs a conflict resolver invocation
func (a *DefaultAuditLogger) LogConflictResolution(ctx context.Context, staffID, strategy, ipAddress, requestID string, conflicts int, result Result, err error) error {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventConflictResolved,
		Resource:  "staff/" + staffID,
		StaffID:   staffID,
		Action:    "resolve_conflict",
		Result:    result,
		IPAddress: ipAddress,
		RequestID: requestID,
		Metadata: map[string]any{
			"strategy":  strategy,
			"conflicts": conflicts,
		},
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return a.LogEvent(ctx, event)
}

// LogClientConnection logs realtime client connects and disconnects
func (a *DefaultAuditLogger) LogClientConnection(ctx context.Context, eventType EventType, clientID, ipAddress string) error {
	action := "connect"
	if eventType == EventClientDisconnected {
		action = "disconnect"
	}
	return a.LogEvent(ctx, &AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Resource:  "client/" + clientID,
		ClientID:  clientID,
		Action:    action,
		Result:    ResultSuccess,
		IPAddress: ipAddress,
	})
}

// LogAuthFailure logs a rejected credential or permission
func (a *DefaultAuditLogger) LogAuthFailure(ctx context.Context, principal, ipAddress, requestID, reason string) error {
	return a.LogEvent(ctx, &AuditEvent{
		Timestamp:    time.Now(),
		EventType:    EventAuthFailure,
		Principal:    principal,
		Action:       "authenticate",
		Result:       ResultFailure,
		ErrorMessage: reason,
		IPAddress:    ipAddress,
		RequestID:    requestID,
	})
}

// LogAuthSuccess logs an accepted credential
func (a *DefaultAuditLogger) LogAuthSuccess(ctx context.Context, principal, ipAddress, requestID string) error {
	return a.LogEvent(ctx, &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventAuthSuccess,
		Principal: principal,
		Action:    "authenticate",
		Result:    ResultSuccess,
		IPAddress: ipAddress,
		RequestID: requestID,
	})
}

// SetLevel sets the minimum audit level
func (a *DefaultAuditLogger) SetLevel(level adapters.LogLevel) {
	a.level.Store(int32(level))
}

// GetLevel returns the current audit level
func (a *DefaultAuditLogger) GetLevel() adapters.LogLevel {
	return adapters.LogLevel(a.level.Load())
}

// NoOpAuditLogger is an audit logger that discards all events
type NoOpAuditLogger struct {
	level adapters.LogLevel
}

// NewNoOpAuditLogger creates a new no-op audit logger
func NewNoOpAuditLogger() AuditLogger {
	return &NoOpAuditLogger{level: adapters.InfoLevel}
}

func (n *NoOpAuditLogger) LogEvent(ctx context.Context, event *AuditEvent) error { return nil }

func (n *NoOpAuditLogger) LogStaffMutation(ctx context.Context, eventType EventType, staffID, ipAddress, requestID string, clock int64, result Result, err error) error {
	return nil
}

func (n *NoOpAuditLogger) LogConflictResolution(ctx context.Context, staffID, strategy, ipAddress, requestID string, conflicts int, result Result, err error) error {
	return nil
}

func (n *NoOpAuditLogger) LogClientConnection(ctx context.Context, eventType EventType, clientID, ipAddress string) error {
	return nil
}

func (n *NoOpAuditLogger) LogAuthFailure(ctx context.Context, principal, ipAddress, requestID, reason string) error {
	return nil
}

func (n *NoOpAuditLogger) LogAuthSuccess(ctx context.Context, principal, ipAddress, requestID string) error {
	return nil
}

func (n *NoOpAuditLogger) SetLevel(level adapters.LogLevel) { n.level = level }
func (n *NoOpAuditLogger) GetLevel() adapters.LogLevel     { return n.level }
