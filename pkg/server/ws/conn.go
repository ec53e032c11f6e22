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

package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeremyhahn/go-shiftsync/pkg/events"
)

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("websocket connection closed")

// DefaultWriteTimeout bounds a single write when the caller's context has
// no earlier deadline.
const DefaultWriteTimeout = 10 * time.Second

// Conn adapts a websocket connection to clients.Conn. Writes are serialized;
// Close may be called from any goroutine and is idempotent.
type Conn struct {
	ws           *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps ws.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// Send writes event as a JSON text frame.
func (c *Conn) Send(ctx context.Context, event *events.Event) error {
	return c.WriteJSON(ctx, event)
}

// WriteJSON writes v as a JSON text frame. The write deadline is the earlier
// of the context deadline and the configured write timeout.
func (c *Conn) WriteJSON(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// Ping sends a websocket ping control frame.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close sends a close frame and closes the underlying connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		// WriteControl is safe to call concurrently with WriteJSON.
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
		c.markDone()
	})
	return c.closeErr
}

// Done is closed once the peer has gone away or Close was called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}
