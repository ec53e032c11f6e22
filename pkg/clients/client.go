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

package clients

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-shiftsync/pkg/events"
)

// Client is a registered connection. The registry owns its connection.
type Client struct {
	ID          string
	ConnectedAt time.Time

	conn  Conn
	queue chan *events.Event
	done  chan struct{}
	// unsent counts events queued or in the middle of a Send.
	unsent atomic.Int64

	// ctx is canceled when the client is stopped, aborting an in-flight Send.
	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	lastSeen      time.Time
}

func newClient(id string, conn Conn, queueSize int, now time.Time) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:            id,
		ConnectedAt:   now,
		conn:          conn,
		queue:         make(chan *events.Event, queueSize),
		done:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]struct{}),
		lastSeen:      now,
	}
}

// Subscriptions returns the subscribed topics, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		out = append(out, topic)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// IsSubscribed reports whether the client is subscribed to topic.
func (c *Client) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// LastSeen returns the time of the last heartbeat.
func (c *Client) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// Pending returns the number of events not yet handed to the connection,
// including one whose Send is still in progress.
func (c *Client) Pending() int {
	return int(c.unsent.Load())
}

// Done is closed once the client's worker has exited and its connection is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) subscribe(topic string) {
	c.mu.Lock()
	c.subscriptions[topic] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

// Info is the JSON view of a client.
type Info struct {
	ID            string    `json:"id"`
	Subscriptions []string  `json:"subscriptions"`
	LastSeen      time.Time `json:"lastSeen"`
	ConnectedAt   time.Time `json:"connectedAt"`
	Pending       int       `json:"pending"`
}

// Info returns a snapshot of the client for display.
func (c *Client) Info() Info {
	return Info{
		ID:            c.ID,
		Subscriptions: c.Subscriptions(),
		LastSeen:      c.LastSeen(),
		ConnectedAt:   c.ConnectedAt,
		Pending:       c.Pending(),
	}
}

// MarshalJSON encodes the client as its Info.
func (c *Client) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Info())
}
