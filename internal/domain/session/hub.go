package session

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/royalbingo/bingo-api/internal/domain/engine"
	"github.com/royalbingo/bingo-api/internal/pkg/metrics"
)

// Connection represents a player WebSocket connection
type Connection struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Name   string
	Conn   *websocket.Conn
	Send   chan []byte
}

func newConnection(userID uuid.UUID, name string, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:     uuid.New(),
		UserID: userID,
		Name:   name,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
}

// Hub fans engine events out to local connections. Sends never block: a
// connection whose buffer is full misses the event.
type Hub struct {
	connections map[uuid.UUID]*Connection
	mu          sync.RWMutex
	closed      bool
}

func NewHub() *Hub {
	return &Hub{connections: make(map[uuid.UUID]*Connection)}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(conn.Send)
		return
	}
	h.connections[conn.ID] = conn
	metrics.WSConnections.Inc()
	log.Debug().Str("user_id", conn.UserID.String()).Str("conn_id", conn.ID.String()).Msg("player connected")
}

// Unregister removes a connection and closes its send channel. Repeated calls
// are ignored.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	close(conn.Send)
	metrics.WSConnections.Dec()
	log.Debug().Str("user_id", conn.UserID.String()).Str("conn_id", conn.ID.String()).Msg("player disconnected")
}

// Broadcast sends ev to every connection
func (h *Hub) Broadcast(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal websocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.connections {
		deliver(conn, data)
	}
}

// Send sends ev to a single connection
func (h *Hub) Send(connID uuid.UUID, ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal websocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if conn, ok := h.connections[connID]; ok {
		deliver(conn, data)
	}
}

func deliver(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
		metrics.WSEventsSent.Inc()
	default:
		metrics.WSEventsDropped.Inc()
		log.Warn().Str("user_id", conn.UserID.String()).Msg("WebSocket send buffer full")
	}
}

// GetConnectionCount returns number of local connections
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Shutdown closes every connection's send channel so writers say goodbye.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, conn := range h.connections {
		delete(h.connections, id)
		close(conn.Send)
		metrics.WSConnections.Dec()
	}
}
