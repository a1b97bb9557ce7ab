package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/identity-core/internal/infrastructure/config"
	"github.com/nerrad567/identity-core/internal/infrastructure/logging"
	"github.com/nerrad567/identity-core/internal/passkey"
)

// WebSocket message types. The handshake types (begin_intent,
// join_approver, resolve) are client→server; new_intent and resolution
// are delivered server→client by the coordinator through Deliver.
const (
	WSTypeBeginIntent  = "begin_intent"
	WSTypeJoinApprover = "join_approver"
	WSTypeResolve      = "resolve"
	WSTypePing         = "ping"
	WSTypePong         = "pong"
	WSTypeResponse     = "response"
	WSTypeError        = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// WSMessage is the JSON envelope for every message crossing the socket.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// wsReply mirrors WSMessage for outbound messages, where the payload is
// a value to marshal rather than raw bytes.
type wsReply struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// beginIntentPayload asks the coordinator to open a handshake attempt
// for a user on behalf of an application.
type beginIntentPayload struct {
	User           string `json:"user"`
	ApplicationKey string `json:"application_key"`
}

// joinApproverPayload subscribes the connection to a user's approver
// topic. The token must belong to the named user.
type joinApproverPayload struct {
	User  string `json:"user"`
	Token string `json:"token"`
}

// resolvePayload carries an approver's decision for a pending attempt.
type resolvePayload struct {
	User           string `json:"user"`
	RequesterTopic string `json:"requester_topic"`
	Decision       string `json:"decision"`
	Token          string `json:"token,omitempty"`
}

// Hub manages WebSocket connections and routes their disconnects into
// the passkey coordinator.
type Hub struct {
	cfg         config.WebSocketConfig
	coordinator *passkey.Coordinator
	logger      *logging.Logger
	clients     map[*WSClient]struct{}
	mu          sync.RWMutex
}

// WSClient is one connected WebSocket client. It implements
// passkey.Endpoint: the coordinator delivers handshake events to it via
// Deliver, which never blocks.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// Identity fields from the WebSocket ticket.
	accountID string
	username  string

	// requesterTopic is this connection's private address for handshake
	// resolutions. Fixed for the connection's lifetime, so a second
	// begin_intent replaces the first attempt rather than leaking it.
	requesterTopic string
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub bound to a passkey coordinator.
func NewHub(cfg config.WebSocketConfig, coordinator *passkey.Coordinator, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:         cfg,
		coordinator: coordinator,
		logger:      logger,
		clients:     make(map[*WSClient]struct{}),
	}
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "user", client.username, "clients", h.ClientCount())
}

// Unregister removes a client from the hub and tells the coordinator
// the endpoint is gone, which rejects any handshake the connection
// still owned. Only the goroutine that successfully removes the client
// from the map closes the send channel, preventing double-close panics
// during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		h.coordinator.OnDisconnect(client, client.requesterTopic)
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "user", client.username, "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.coordinator.OnDisconnect(client, client.requesterTopic)
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
// Authentication is via ticket query parameter (obtained from POST /auth/ws-ticket).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:            s.hub,
		conn:           conn,
		send:           make(chan []byte, wsSendBufferSize),
		accountID:      entry.accountID,
		username:       entry.username,
		requesterTopic: "req-" + uuid.NewString(),
	}

	s.hub.Register(client)

	// Start read/write pumps
	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// Deliver implements passkey.Endpoint. It wraps the handshake event in
// the wire envelope and hands it to the send buffer without blocking;
// a slow or dead connection drops the event rather than stalling the
// coordinator.
func (c *WSClient) Deliver(ev passkey.Event) {
	data, err := json.Marshal(wsReply{
		Type:      ev.EventType(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   ev,
	})
	if err != nil {
		c.hub.logger.Error("failed to marshal handshake event", "error", err)
		return
	}
	c.trySend(data)
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if the client doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeBeginIntent:
		c.handleBeginIntent(msg)
	case WSTypeJoinApprover:
		c.handleJoinApprover(msg)
	case WSTypeResolve:
		c.handleResolve(msg)
	case WSTypePing:
		c.sendReply(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleBeginIntent opens a handshake attempt on this connection's
// requester topic and announces it to the user's approver devices.
func (c *WSClient) handleBeginIntent(msg WSMessage) {
	var req beginIntentPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		c.sendError(msg.ID, "invalid begin_intent payload")
		return
	}
	if req.User == "" || req.ApplicationKey == "" {
		c.sendError(msg.ID, "user and application_key are required")
		return
	}

	outcome := c.hub.coordinator.BeginAttempt(context.Background(), req.User, req.ApplicationKey, c.requesterTopic, c)

	c.sendReply(msg.ID, WSTypeResponse, map[string]any{
		"outcome":         outcome,
		"requester_topic": c.requesterTopic,
	})
}

// handleJoinApprover subscribes this connection to a user's approver
// topic after the coordinator has checked token ownership.
func (c *WSClient) handleJoinApprover(msg WSMessage) {
	var req joinApproverPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		c.sendError(msg.ID, "invalid join_approver payload")
		return
	}
	if req.User == "" || req.Token == "" {
		c.sendError(msg.ID, "user and token are required")
		return
	}

	outcome := c.hub.coordinator.JoinApprover(context.Background(), req.User, req.Token, c)

	c.sendReply(msg.ID, WSTypeResponse, map[string]any{"outcome": outcome})
}

// handleResolve submits an approver's decision for a pending attempt.
func (c *WSClient) handleResolve(msg WSMessage) {
	var req resolvePayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		c.sendError(msg.ID, "invalid resolve payload")
		return
	}
	if req.User == "" || req.RequesterTopic == "" || req.Decision == "" {
		c.sendError(msg.ID, "user, requester_topic, and decision are required")
		return
	}

	outcome := c.hub.coordinator.Resolve(context.Background(), req.User, req.RequesterTopic, passkey.Decision(req.Decision), req.Token)

	c.sendReply(msg.ID, WSTypeResponse, map[string]any{"outcome": outcome})
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during delivery)
// and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// sendReply sends a response message to the client.
// Routes through trySend to safely handle closed channels during shutdown.
func (c *WSClient) sendReply(id, msgType string, payload any) {
	data, err := json.Marshal(wsReply{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendReply(id, WSTypeError, map[string]string{"message": message})
}
