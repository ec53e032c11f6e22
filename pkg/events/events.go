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

// Package events defines the change notifications fanned out to clients.
package events

import (
	"time"

	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
)

// Topics clients can subscribe to.
const (
	TopicStaffCreate = "staff_create"
	TopicStaffUpdate = "staff_update"
	TopicStaffDelete = "staff_delete"

	// TopicSystem carries server notices sent with BroadcastEvent.
	TopicSystem = "system"
)

// StaffTopics returns the topics emitted by the record store.
func StaffTopics() []string {
	return []string{TopicStaffCreate, TopicStaffUpdate, TopicStaffDelete}
}

// Event is an outbound notification. Events are shared between every
// recipient and must not be modified after New returns.
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Version   int64          `json:"version"`
}

// New creates an event for topic stamped with the global clock value.
func New(topic string, version int64, data map[string]any) *Event {
	if data == nil {
		data = map[string]any{}
	}
	return &Event{
		Type:      topic,
		Data:      data,
		Timestamp: time.Now(),
		Version:   version,
	}
}

// Broadcaster delivers events to subscribed clients.
type Broadcaster interface {
	BroadcastToSubscribers(event *Event)
}

// StaffCreated builds the payload for a staff_create event.
func StaffCreated(m *staff.Member) map[string]any {
	return map[string]any{
		"id":    m.ID,
		"staff": m.Clone(),
	}
}

// StaffUpdated builds the payload for a staff_update event. changes holds
// only the fields supplied by the caller.
func StaffUpdated(m *staff.Member, changes map[string]any) map[string]any {
	return map[string]any{
		"id":      m.ID,
		"changes": changes,
		"version": m.Version,
		"staff":   m.Clone(),
	}
}

// StaffDeleted builds the payload for a staff_delete event.
func StaffDeleted(m *staff.Member) map[string]any {
	return map[string]any{
		"id":     m.ID,
		"period": m.Period,
	}
}
