package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/jobs"
	"github.com/yourusername/stocktester/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client messages
const (
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
)

// ClientMessage is sent by websocket clients to filter job events
type ClientMessage struct {
	Type       string `json:"type"`
	BacktestID string `json:"backtest_id"`
}

// wsClient is one websocket connection. A client without subscriptions
// receives every event.
type wsClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]bool
}

func (c *wsClient) wants(backtestID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[backtestID]
}

// Hub fans job events out to websocket clients
type Hub struct {
	logger   *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]bool
	closed  bool
}

// NewHub creates a hub. allowedOrigins bounds browser upgrades; "*" allows any.
func NewHub(allowedOrigins []string, logger *logrus.Logger) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Hub{
		logger:  logger.WithField("component", "websocket"),
		clients: make(map[*wsClient]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// Publish queues event for every interested client and never blocks
func (h *Hub) Publish(event jobs.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal job event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wants(event.BacktestID) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.logger.WithField("client", client.id).Warn("Client send buffer full, dropping event")
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	metrics.UpdateWebsocketClients(0)
}

// ServeHTTP upgrades the request and starts the client pumps
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	client := &wsClient{
		id:            uuid.New().String(),
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		subscriptions: make(map[string]bool),
	}
	if !h.register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = true
	metrics.UpdateWebsocketClients(len(h.clients))
	h.logger.WithField("client", c.id).Debug("Client connected")
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.UpdateWebsocketClients(len(h.clients))
		h.logger.WithField("client", c.id).Debug("Client disconnected")
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Warn("Websocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.BacktestID == "" {
			continue
		}
		c.mu.Lock()
		switch msg.Type {
		case MsgTypeSubscribe:
			c.subscriptions[msg.BacktestID] = true
		case MsgTypeUnsubscribe:
			delete(c.subscriptions, msg.BacktestID)
		}
		c.mu.Unlock()
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Run closes the hub when ctx ends
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}
