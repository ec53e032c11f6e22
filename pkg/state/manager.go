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

// Package state provides the authoritative, versioned in-memory record store.
//
// Every mutation runs under a single exclusive lock that covers the record
// map, the global clock, the change log append and the event hand-off, so
// the clock order, the change log order and the per-client event order all
// agree. Event hand-off only enqueues and never waits on a client.
package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/changelog"
	"github.com/jeremyhahn/go-shiftsync/pkg/clients"
	"github.com/jeremyhahn/go-shiftsync/pkg/common"
	"github.com/jeremyhahn/go-shiftsync/pkg/events"
	"github.com/jeremyhahn/go-shiftsync/pkg/metrics"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
	"github.com/jeremyhahn/go-shiftsync/pkg/validation"
)

// Registry is the part of the client registry the store needs.
type Registry interface {
	events.Broadcaster
	AddClient(id string, conn clients.Conn) *clients.Client
	SubscribeClient(id, topic string) error
}

// WriteThrough receives every committed mutation. Implementations must not
// block; the store calls them after releasing its lock.
type WriteThrough interface {
	RecordUpsert(m *staff.Member, clock int64)
	RecordDelete(id string, clock int64)
}

// Config configures a Manager.
type Config struct {
	Registry     Registry
	ChangeLog    *changelog.Log
	WriteThrough WriteThrough
	Logger       adapters.Logger
	Metrics      *metrics.Metrics
	// Now and IDGenerator override the clock and id source, for tests.
	Now         func() time.Time
	IDGenerator func() string
}

// Manager is the record store.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*staff.Member
	clock   int64

	registry     Registry
	changeLog    *changelog.Log
	writeThrough WriteThrough
	logger       adapters.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	newID        func() string
}

// NewManager creates an empty store at clock zero.
func NewManager(config Config) *Manager {
	if config.ChangeLog == nil {
		config.ChangeLog = changelog.New(changelog.Config{Logger: config.Logger})
	}
	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewMetrics()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.IDGenerator == nil {
		config.IDGenerator = uuid.NewString
	}
	return &Manager{
		records:      make(map[string]*staff.Member),
		registry:     config.Registry,
		changeLog:    config.ChangeLog,
		writeThrough: config.WriteThrough,
		logger:       config.Logger,
		metrics:      config.Metrics,
		now:          config.Now,
		newID:        config.IDGenerator,
	}
}

// CreateStaff validates req and stores a new member at version 1.
func (s *Manager) CreateStaff(ctx context.Context, req *staff.CreateRequest) (*staff.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.newID()
	for _, taken := s.records[id]; taken; _, taken = s.records[id] {
		id = s.newID()
	}
	m := &staff.Member{
		ID:         id,
		Name:       req.Name,
		Position:   req.Position,
		Department: req.Department,
		Type:       req.Type,
		Period:     req.Period,
		Version:    1,
		UpdatedAt:  s.now(),
	}
	s.records[id] = m
	clock := s.commit(changelog.EntryStaffCreate, id,
		events.TopicStaffCreate, events.StaffCreated(m))
	out := m.Clone()
	s.mu.Unlock()

	s.metrics.IncStaffCreated()
	if s.writeThrough != nil {
		s.writeThrough.RecordUpsert(out.Clone(), clock)
	}
	s.logger.Debug(ctx, "Staff created",
		adapters.Field{Key: "staff_id", Value: id},
		adapters.Field{Key: "clock", Value: clock})
	return out, nil
}

// GetStaff returns a copy of the member stored under id.
func (s *Manager) GetStaff(ctx context.Context, id string) (*staff.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.records[id]
	if !ok {
		return nil, common.NotFound(staff.Resource, id)
	}
	return m.Clone(), nil
}

// UpdateStaff applies req to the member stored under id if req.Version
// matches the stored version. Existence, version and field checks and the
// write happen under one lock; on any failure the member is unchanged.
func (s *Manager) UpdateStaff(ctx context.Context, id string, req *staff.UpdateRequest) (*staff.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	current, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return nil, common.NotFound(staff.Resource, id)
	}
	if req == nil {
		s.mu.Unlock()
		return nil, common.Validation("", "update request is required")
	}
	if req.Version != current.Version {
		actual := current.Version
		s.mu.Unlock()
		s.metrics.IncVersionConflicts()
		s.logger.Debug(ctx, "Version conflict",
			adapters.Field{Key: "staff_id", Value: id},
			adapters.Field{Key: "expected", Value: req.Version},
			adapters.Field{Key: "actual", Value: actual})
		return nil, common.VersionConflict(staff.Resource, id, req.Version, actual)
	}
	if err := req.Validate(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	// Mutate a copy and swap it in, so a reader holding the old pointer
	// under RLock never sees a partial write.
	next := current.Clone()
	changes := req.Apply(next)
	next.Version++
	next.UpdatedAt = s.now()
	s.records[id] = next
	clock := s.commit(changelog.EntryStaffUpdate, id,
		events.TopicStaffUpdate, events.StaffUpdated(next, changes))
	out := next.Clone()
	s.mu.Unlock()

	s.metrics.IncStaffUpdated()
	if s.writeThrough != nil {
		s.writeThrough.RecordUpsert(out.Clone(), clock)
	}
	s.logger.Debug(ctx, "Staff updated",
		adapters.Field{Key: "staff_id", Value: id},
		adapters.Field{Key: "version", Value: out.Version},
		adapters.Field{Key: "clock", Value: clock})
	return out, nil
}

// DeleteStaff removes the member stored under id.
func (s *Manager) DeleteStaff(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	m, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return common.NotFound(staff.Resource, id)
	}
	delete(s.records, id)
	clock := s.commit(changelog.EntryStaffDelete, id,
		events.TopicStaffDelete, events.StaffDeleted(m))
	s.mu.Unlock()

	s.metrics.IncStaffDeleted()
	if s.writeThrough != nil {
		s.writeThrough.RecordDelete(id, clock)
	}
	s.logger.Debug(ctx, "Staff deleted",
		adapters.Field{Key: "staff_id", Value: id},
		adapters.Field{Key: "clock", Value: clock})
	return nil
}

// commit advances the clock, appends the change log entry and hands the
// event to the registry. It must be called with mu held.
func (s *Manager) commit(entry changelog.EntryType, id, topic string, data map[string]any) int64 {
	s.clock++
	now := s.now()
	s.changeLog.Append(changelog.Entry{
		Type:      entry,
		StaffID:   id,
		Clock:     s.clock,
		Timestamp: now,
	})
	if s.registry != nil {
		event := events.New(topic, s.clock, data)
		event.Timestamp = now
		s.registry.BroadcastToSubscribers(event)
	}
	return s.clock
}

// GetAllStaff returns copies of every member in period, ordered by id.
func (s *Manager) GetAllStaff(ctx context.Context, period int) ([]*staff.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*staff.Member, 0, len(s.records))
	for _, m := range s.records {
		if m.Period == period {
			out = append(out, m.Clone())
		}
	}
	s.mu.RUnlock()

	sortByID(out)
	return out, nil
}

// GetVersion returns the global clock.
func (s *Manager) GetVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock
}

// GetChangeLog returns every change log entry in commit order.
func (s *Manager) GetChangeLog() []changelog.Entry {
	return s.changeLog.Entries()
}

// GetChangesSince returns the change log entries with a clock above clock.
func (s *Manager) GetChangesSince(clock int64) []changelog.Entry {
	return s.changeLog.Since(clock)
}

// AddSubscriber registers conn with the registry under clientID and
// subscribes it to every staff topic.
func (s *Manager) AddSubscriber(clientID string, conn clients.Conn) (*clients.Client, error) {
	if s.registry == nil {
		return nil, common.Internal("no client registry configured", nil)
	}
	c := s.registry.AddClient(clientID, conn)
	for _, topic := range events.StaffTopics() {
		if err := s.registry.SubscribeClient(clientID, topic); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Snapshot returns copies of every member, ordered by id, and the clock
// they were read at.
func (s *Manager) Snapshot() ([]*staff.Member, int64) {
	s.mu.RLock()
	out := make([]*staff.Member, 0, len(s.records))
	for _, m := range s.records {
		out = append(out, m.Clone())
	}
	clock := s.clock
	s.mu.RUnlock()

	sortByID(out)
	return out, clock
}

// Restore replaces the store contents with members and sets the clock. It
// emits no events and appends nothing to the change log. A clock below the
// current one is rejected.
func (s *Manager) Restore(members []*staff.Member, clock int64) error {
	records := make(map[string]*staff.Member, len(members))
	for _, m := range members {
		if m == nil {
			return common.Validation("id", "restored member has no id")
		}
		if err := validation.ValidateStaffID(m.ID); err != nil {
			return err
		}
		records[m.ID] = m.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if clock < s.clock {
		return common.Validation("clock", "restore would move the clock backwards")
	}
	s.records = records
	s.clock = clock
	return nil
}

// Count returns the number of stored members.
func (s *Manager) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func sortByID(members []*staff.Member) {
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
}
