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

// Package ws is the websocket transport for realtime clients.
//
// Each upgraded connection is registered with the client registry, which
// owns outbound delivery. This package only runs the inbound read loop:
//
//	{"action":"subscribe","topics":["staff_update"]}   -> subscribe_ack
//	{"action":"unsubscribe","topics":["staff_update"]} -> unsubscribe_ack
//	{"action":"ping"}                                  -> pong
//
// Every inbound frame refreshes the client heartbeat.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/audit"
	"github.com/jeremyhahn/go-shiftsync/pkg/clients"
	"github.com/jeremyhahn/go-shiftsync/pkg/server"
	"github.com/jeremyhahn/go-shiftsync/pkg/validation"
)

// Client actions and server replies.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"

	ReplyConnected      = "connected"
	ReplySubscribeAck   = "subscribe_ack"
	ReplyUnsubscribeAck = "unsubscribe_ack"
	ReplyPong           = "pong"
	ReplyError          = "error"
)

// Message is an inbound client frame.
type Message struct {
	Action string   `json:"action"`
	Topics []string `json:"topics,omitempty"`
}

// Reply is an outbound control frame. Events are sent as events.Event.
type Reply struct {
	Action    string    `json:"action"`
	ClientID  string    `json:"client_id,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Registry is the part of the client registry the transport drives.
type Registry interface {
	AddClient(id string, conn clients.Conn) *clients.Client
	SubscribeClient(id, topic string) error
	UnsubscribeClient(id, topic string) error
	UpdateClientHeartbeat(id string) error
	GetClient(id string) (*clients.Client, error)
}

// Subscriber registers a client on every staff topic.
type Subscriber interface {
	AddSubscriber(clientID string, conn clients.Conn) (*clients.Client, error)
}

// Config configures a Handler.
type Config struct {
	Registry Registry

	// Subscriber, when set, is used for clients that name no topics on
	// connect; they receive every staff event.
	Subscriber Subscriber

	// AllowedOrigins restricts the Origin header. Empty allows any origin.
	AllowedOrigins []string

	WriteTimeout time.Duration

	// PingInterval sends websocket pings; a pong refreshes the heartbeat.
	// Zero disables server pings.
	PingInterval time.Duration

	Logger      adapters.Logger
	AuditLogger audit.AuditLogger
}

// Handler upgrades HTTP requests to websocket clients.
type Handler struct {
	registry     Registry
	subscriber   Subscriber
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       adapters.Logger
	auditLogger  audit.AuditLogger
}

// NewHandler creates a Handler.
func NewHandler(config Config) *Handler {
	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}
	if config.AuditLogger == nil {
		config.AuditLogger = audit.NewNoOpAuditLogger()
	}

	origins := make(map[string]bool, len(config.AllowedOrigins))
	for _, o := range config.AllowedOrigins {
		origins[o] = true
	}

	return &Handler{
		registry:   config.Registry,
		subscriber: config.Subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 || origins["*"] {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
		},
		writeTimeout: config.WriteTimeout,
		pingInterval: config.PingInterval,
		logger:       config.Logger,
		auditLogger:  config.AuditLogger,
	}
}

// ServeHTTP accepts ?client_id=<id> (default: a new uuid) and
// ?topics=a,b (default: every staff topic).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	if err := validation.ValidateClientID(clientID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	topics := splitTopics(r.URL.Query().Get("topics"))
	if len(topics) > server.MaxTopicsPerMessage {
		http.Error(w, "too many topics", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateTopics(topics); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn(r.Context(), "Websocket upgrade failed",
			adapters.Field{Key: "client_id", Value: clientID},
			adapters.ErrField(err))
		return
	}
	wsConn.SetReadLimit(server.MaxWebSocketMessageSize)
	conn := NewConn(wsConn, h.writeTimeout)

	ctx := context.Background()
	if err := conn.WriteJSON(ctx, Reply{Action: ReplyConnected, ClientID: clientID, Timestamp: time.Now()}); err != nil {
		h.logger.Warn(ctx, "Failed to greet websocket client",
			adapters.Field{Key: "client_id", Value: clientID},
			adapters.ErrField(err))
		_ = conn.Close()
		return
	}

	if err := h.register(clientID, conn, topics); err != nil {
		h.logger.Error(ctx, "Failed to register websocket client",
			adapters.Field{Key: "client_id", Value: clientID},
			adapters.ErrField(err))
		_ = conn.Close()
		return
	}

	remote := r.RemoteAddr
	_ = h.auditLogger.LogClientConnection(ctx, audit.EventClientConnected, clientID, remote) //nolint:errcheck
	h.logger.Info(ctx, "Websocket client connected",
		adapters.Field{Key: "client_id", Value: clientID},
		adapters.Field{Key: "remote_addr", Value: remote})

	go h.readLoop(clientID, conn, remote)
}

func (h *Handler) register(clientID string, conn *Conn, topics []string) error {
	if len(topics) == 0 && h.subscriber != nil {
		_, err := h.subscriber.AddSubscriber(clientID, conn)
		return err
	}
	h.registry.AddClient(clientID, conn)
	for _, topic := range topics {
		if err := h.registry.SubscribeClient(clientID, topic); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) readLoop(clientID string, conn *Conn, remote string) {
	ctx := context.Background()
	defer func() {
		conn.markDone()
		_ = h.auditLogger.LogClientConnection(ctx, audit.EventClientDisconnected, clientID, remote) //nolint:errcheck
	}()

	conn.ws.SetPongHandler(func(string) error {
		_ = h.registry.UpdateClientHeartbeat(clientID)
		return nil
	})
	if h.pingInterval > 0 {
		go h.pingLoop(conn)
	}

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(ctx, "Websocket read failed",
					adapters.Field{Key: "client_id", Value: clientID},
					adapters.ErrField(err))
			}
			return
		}

		if err := h.registry.UpdateClientHeartbeat(clientID); err != nil {
			// Evicted by the registry.
			return
		}

		reply := h.handle(clientID, data)
		if err := conn.WriteJSON(ctx, reply); err != nil {
			return
		}
	}
}

func (h *Handler) handle(clientID string, data []byte) Reply {
	reply := Reply{Timestamp: time.Now()}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		reply.Action = ReplyError
		reply.Error = "invalid message: " + err.Error()
		return reply
	}
	if len(msg.Topics) > server.MaxTopicsPerMessage {
		reply.Action = ReplyError
		reply.Error = "too many topics"
		return reply
	}

	switch msg.Action {
	case ActionPing:
		reply.Action = ReplyPong
		return reply
	case ActionSubscribe:
		reply.Action = ReplySubscribeAck
		if err := validation.ValidateTopics(msg.Topics); err != nil {
			reply.Action = ReplyError
			reply.Error = err.Error()
			return reply
		}
		for _, topic := range msg.Topics {
			if err := h.registry.SubscribeClient(clientID, topic); err != nil {
				reply.Action = ReplyError
				reply.Error = err.Error()
				return reply
			}
		}
	case ActionUnsubscribe:
		reply.Action = ReplyUnsubscribeAck
		for _, topic := range msg.Topics {
			if err := h.registry.UnsubscribeClient(clientID, topic); err != nil {
				reply.Action = ReplyError
				reply.Error = err.Error()
				return reply
			}
		}
	default:
		reply.Action = ReplyError
		reply.Error = fmt.Sprintf("unknown action %q", msg.Action)
		return reply
	}

	if c, err := h.registry.GetClient(clientID); err == nil {
		reply.Topics = c.Subscriptions()
	}
	return reply
}

func (h *Handler) pingLoop(conn *Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-conn.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}

func splitTopics(raw string) []string {
	if raw == "" {
		return nil
	}
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
