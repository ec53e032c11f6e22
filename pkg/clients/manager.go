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

// Package clients implements the registry of connected clients and the
// subscription-filtered fan-out of events to them.
//
// Every registered client gets one worker goroutine that owns the client's
// outbound queue and connection. Broadcasts only enqueue, so a slow client
// never stalls the broadcaster or other clients. A client whose queue is
// full is disconnected.
package clients

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/common"
	"github.com/jeremyhahn/go-shiftsync/pkg/events"
	"github.com/jeremyhahn/go-shiftsync/pkg/metrics"
)

// Resource names clients in errors.
const Resource = "client"

const (
	DefaultHeartbeatWindow = 30 * time.Second
	DefaultQueueSize       = 256
	DefaultSendTimeout     = 10 * time.Second
)

// Disconnect reasons reported in logs.
const (
	ReasonRemoved    = "removed"
	ReasonReplaced   = "replaced"
	ReasonSlow       = "queue_full"
	ReasonConnClosed = "connection_closed"
	ReasonInactive   = "inactive"
	ReasonShutdown   = "shutdown"
)

// Conn is the transport capability the registry needs from a connection.
type Conn interface {
	// Send pushes one event to the peer. It should honor ctx.
	Send(ctx context.Context, event *events.Event) error
	// Close releases the connection. The registry calls it exactly once.
	Close() error
	// Done is closed when the connection is dead.
	Done() <-chan struct{}
}

// Config configures a Manager.
type Config struct {
	// HeartbeatWindow is how recent LastSeen must be for a client to count as active.
	HeartbeatWindow time.Duration
	// QueueSize is the per-client outbound queue capacity.
	QueueSize int
	// SendTimeout bounds a single Conn.Send.
	SendTimeout time.Duration
	Logger      adapters.Logger
	Metrics     *metrics.Metrics
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	TotalClients  int       `json:"totalClients"`
	ActiveClients int       `json:"activeClients"`
	Heartbeat     string    `json:"heartbeat"`
	Timestamp     time.Time `json:"timestamp"`
}

// Manager is the client registry.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client

	heartbeat   atomic.Int64
	queueSize   int
	sendTimeout time.Duration
	logger      adapters.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewManager creates an empty registry.
func NewManager(config Config) *Manager {
	if config.HeartbeatWindow <= 0 {
		config.HeartbeatWindow = DefaultHeartbeatWindow
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
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

	m := &Manager{
		clients:     make(map[string]*Client),
		queueSize:   config.QueueSize,
		sendTimeout: config.SendTimeout,
		logger:      config.Logger,
		metrics:     config.Metrics,
		now:         config.Now,
	}
	m.heartbeat.Store(int64(config.HeartbeatWindow))
	return m
}

// AddClient registers a client with no subscriptions and starts its worker.
// An existing client with the same id is replaced; its connection is closed
// before AddClient returns.
func (m *Manager) AddClient(id string, conn Conn) *Client {
	c := newClient(id, conn, m.queueSize, m.now())

	m.mu.Lock()
	old := m.clients[id]
	m.clients[id] = c
	m.mu.Unlock()

	go m.work(c)

	if old != nil {
		m.stop(old, ReasonReplaced)
		<-old.done
	}

	m.logger.Info(context.Background(), "Client connected",
		adapters.Field{Key: "client_id", Value: id},
		adapters.Field{Key: "replaced", Value: old != nil})
	return c
}

// RemoveClient unregisters a client and waits for its connection to be closed.
func (m *Manager) RemoveClient(id string) error {
	m.mu.Lock()
	c, ok := m.clients[id]
	if ok {
		delete(m.clients, id)
	}
	m.mu.Unlock()

	if !ok {
		return common.NotFound(Resource, id)
	}
	m.stop(c, ReasonRemoved)
	<-c.done
	return nil
}

// GetClient returns the client registered under id.
func (m *Manager) GetClient(id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, common.NotFound(Resource, id)
	}
	return c, nil
}

// GetAllClients returns every registered client ordered by id.
func (m *Manager) GetAllClients() []*Client {
	m.mu.RLock()
	out := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetClientCount returns the number of registered clients.
func (m *Manager) GetClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// SubscribeClient adds topic to the client's subscription set.
func (m *Manager) SubscribeClient(id, topic string) error {
	c, err := m.GetClient(id)
	if err != nil {
		return err
	}
	c.subscribe(topic)
	return nil
}

// UnsubscribeClient removes topic from the client's subscription set.
func (m *Manager) UnsubscribeClient(id, topic string) error {
	c, err := m.GetClient(id)
	if err != nil {
		return err
	}
	c.unsubscribe(topic)
	return nil
}

// UpdateClientHeartbeat sets the client's LastSeen to now.
func (m *Manager) UpdateClientHeartbeat(id string) error {
	c, err := m.GetClient(id)
	if err != nil {
		return err
	}
	c.touch(m.now())
	return nil
}

// BroadcastToSubscribers enqueues event for every client subscribed to
// event.Type at the time of the call. It never blocks on delivery and never
// fails; clients that cannot keep up are disconnected.
func (m *Manager) BroadcastToSubscribers(event *events.Event) {
	if event == nil {
		return
	}
	m.dispatch(event, func(c *Client) bool { return c.IsSubscribed(event.Type) })
}

// BroadcastEvent enqueues event for every registered client regardless of
// subscriptions.
func (m *Manager) BroadcastEvent(event *events.Event) {
	if event == nil {
		return
	}
	m.dispatch(event, func(*Client) bool { return true })
}

func (m *Manager) dispatch(event *events.Event, match func(*Client) bool) {
	m.metrics.IncEventsBroadcast()

	var overflow []*Client
	m.mu.RLock()
	for _, c := range m.clients {
		if !match(c) {
			continue
		}
		c.unsent.Add(1)
		select {
		case c.queue <- event:
		default:
			c.unsent.Add(-1)
			overflow = append(overflow, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range overflow {
		m.metrics.IncEventsDropped()
		m.logger.Warn(context.Background(), "Client outbound queue full, disconnecting",
			adapters.Field{Key: "client_id", Value: c.ID},
			adapters.Field{Key: "event_type", Value: event.Type})
		go m.evict(c, ReasonSlow)
	}
}

// GetClientStats returns a summary of the registry.
func (m *Manager) GetClientStats() Stats {
	now := m.now()
	window := m.HeartbeatWindow()

	m.mu.RLock()
	total := len(m.clients)
	active := 0
	for _, c := range m.clients {
		if now.Sub(c.LastSeen()) <= window {
			active++
		}
	}
	m.mu.RUnlock()

	return Stats{
		TotalClients:  total,
		ActiveClients: active,
		Heartbeat:     window.String(),
		Timestamp:     now,
	}
}

// HeartbeatWindow returns the current heartbeat window.
func (m *Manager) HeartbeatWindow() time.Duration {
	return time.Duration(m.heartbeat.Load())
}

// SetHeartbeatWindow changes the heartbeat window. Non-positive values are ignored.
func (m *Manager) SetHeartbeatWindow(window time.Duration) {
	if window <= 0 {
		return
	}
	m.heartbeat.Store(int64(window))
}

// SweepInactive disconnects every client whose LastSeen is outside the
// heartbeat window and returns their ids.
func (m *Manager) SweepInactive() []string {
	now := m.now()
	window := m.HeartbeatWindow()

	m.mu.Lock()
	var stale []*Client
	for id, c := range m.clients {
		if now.Sub(c.LastSeen()) > window {
			stale = append(stale, c)
			delete(m.clients, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for _, c := range stale {
		m.metrics.IncClientsEvicted()
		m.stop(c, ReasonInactive)
		<-c.done
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

// Run sweeps inactive clients every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ids := m.SweepInactive(); len(ids) > 0 {
				m.logger.Info(ctx, "Swept inactive clients",
					adapters.Field{Key: "count", Value: len(ids)})
			}
		}
	}
}

// Flush waits until every client has finished sending its queued events or
// ctx is done.
func (m *Manager) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.clients {
		n += c.Pending()
	}
	return n
}

// Close disconnects every client and waits for their workers to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		all = append(all, c)
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, c := range all {
		m.stop(c, ReasonShutdown)
	}
	for _, c := range all {
		<-c.done
	}
}

// evict removes c if it is still the registered client for its id. It does
// not wait for the worker, so the worker may call it.
func (m *Manager) evict(c *Client, reason string) {
	m.mu.Lock()
	if cur, ok := m.clients[c.ID]; ok && cur == c {
		delete(m.clients, c.ID)
	}
	m.mu.Unlock()

	m.metrics.IncClientsEvicted()
	m.stop(c, reason)
}

func (m *Manager) stop(c *Client, reason string) {
	c.stopOnce.Do(func() {
		m.logger.Debug(context.Background(), "Stopping client",
			adapters.Field{Key: "client_id", Value: c.ID},
			adapters.Field{Key: "reason", Value: reason})
		c.cancel()
	})
}

// work is the per-client worker. It is the only goroutine that calls
// Send or Close on the client's connection.
func (m *Manager) work(c *Client) {
	defer close(c.done)
	defer func() {
		if err := c.conn.Close(); err != nil {
			m.logger.Debug(context.Background(), "Client connection close failed",
				adapters.Field{Key: "client_id", Value: c.ID},
				adapters.ErrField(err))
		}
		m.logger.Info(context.Background(), "Client disconnected",
			adapters.Field{Key: "client_id", Value: c.ID})
	}()

	connDone := c.conn.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-connDone:
			m.evict(c, ReasonConnClosed)
			return
		case event := <-c.queue:
			m.deliver(c, event)
			c.unsent.Add(-1)
		}
	}
}

func (m *Manager) deliver(c *Client, event *events.Event) {
	ctx, cancel := context.WithTimeout(c.ctx, m.sendTimeout)
	defer cancel()

	if err := c.conn.Send(ctx, event); err != nil {
		if c.ctx.Err() != nil {
			return
		}
		m.metrics.IncDeliveryFailures()
		m.logger.Warn(ctx, "Event delivery failed",
			adapters.Field{Key: "client_id", Value: c.ID},
			adapters.Field{Key: "event_type", Value: event.Type},
			adapters.ErrField(err))
		return
	}
	m.metrics.IncDeliveries()
}
