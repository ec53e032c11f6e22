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

// Package metrics tracks synchronization counters.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks store, delivery and persistence counters.
// All fields use atomic operations for thread-safe updates.
type Metrics struct {
	startTime time.Time

	// Store
	staffCreated     atomic.Int64
	staffUpdated     atomic.Int64
	staffDeleted     atomic.Int64
	versionConflicts atomic.Int64

	// Conflict resolution
	conflictsResolved atomic.Int64
	userChoices       atomic.Int64

	// Delivery
	eventsBroadcast  atomic.Int64
	deliveries       atomic.Int64
	deliveryFailures atomic.Int64
	eventsDropped    atomic.Int64
	clientsEvicted   atomic.Int64

	// Persistence
	persistWrites atomic.Int64
	persistErrors atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncStaffCreated() { m.staffCreated.Add(1) }
func (m *Metrics) IncStaffUpdated() { m.staffUpdated.Add(1) }
func (m *Metrics) IncStaffDeleted() { m.staffDeleted.Add(1) }
func (m *Metrics) IncVersionConflicts() { m.versionConflicts.Add(1) }
func (m *Metrics) IncConflictsResolved() { m.conflictsResolved.Add(1) }
func (m *Metrics) IncUserChoices() { m.userChoices.Add(1) }
func (m *Metrics) IncEventsBroadcast() { m.eventsBroadcast.Add(1) }
func (m *Metrics) IncDeliveries() { m.deliveries.Add(1) }
func (m *Metrics) IncDeliveryFailures() { m.deliveryFailures.Add(1) }
func (m *Metrics) IncEventsDropped() { m.eventsDropped.Add(1) }
func (m *Metrics) IncClientsEvicted() { m.clientsEvicted.Add(1) }
func (m *Metrics) IncPersistWrites() { m.persistWrites.Add(1) }
func (m *Metrics) IncPersistErrors() { m.persistErrors.Add(1) }

// Snapshot returns a point-in-time copy of every counter.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		StaffCreated:      m.staffCreated.Load(),
		StaffUpdated:      m.staffUpdated.Load(),
		StaffDeleted:      m.staffDeleted.Load(),
		VersionConflicts:  m.versionConflicts.Load(),
		ConflictsResolved: m.conflictsResolved.Load(),
		UserChoices:       m.userChoices.Load(),
		EventsBroadcast:   m.eventsBroadcast.Load(),
		Deliveries:        m.deliveries.Load(),
		DeliveryFailures:  m.deliveryFailures.Load(),
		EventsDropped:     m.eventsDropped.Load(),
		ClientsEvicted:    m.clientsEvicted.Load(),
		PersistWrites:     m.persistWrites.Load(),
		PersistErrors:     m.persistErrors.Load(),
		Uptime:            time.Since(m.startTime).Round(time.Second).String(),
	}
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.staffCreated, &m.staffUpdated, &m.staffDeleted, &m.versionConflicts,
		&m.conflictsResolved, &m.userChoices,
		&m.eventsBroadcast, &m.deliveries, &m.deliveryFailures, &m.eventsDropped, &m.clientsEvicted,
		&m.persistWrites, &m.persistErrors,
	} {
		c.Store(0)
	}
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	StaffCreated      int64  `json:"staff_created"`
	StaffUpdated      int64  `json:"staff_updated"`
	StaffDeleted      int64  `json:"staff_deleted"`
	VersionConflicts  int64  `json:"version_conflicts"`
	ConflictsResolved int64  `json:"conflicts_resolved"`
	UserChoices       int64  `json:"user_choices"`
	EventsBroadcast   int64  `json:"events_broadcast"`
	Deliveries        int64  `json:"deliveries"`
	DeliveryFailures  int64  `json:"delivery_failures"`
	EventsDropped     int64  `json:"events_dropped"`
	ClientsEvicted    int64  `json:"clients_evicted"`
	PersistWrites     int64  `json:"persist_writes"`
	PersistErrors     int64  `json:"persist_errors"`
	Uptime            string `json:"uptime"`
}
