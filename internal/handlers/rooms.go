package handlers

import (
	"sync"

	"github.com/andepants/buzzbox-backend/internal/utils"

	"github.com/gofiber/websocket/v2"
)

type RoomManager struct {
	// roomName -> connectionID -> *websocket.Conn
	rooms map[string]map[string]*websocket.Conn
	mu    sync.RWMutex
	// connID -> metadata (includes connection reference)
	connMeta map[string]ConnMeta
}

var Manager = &RoomManager{
	rooms:    make(map[string]map[string]*websocket.Conn),
	connMeta: make(map[string]ConnMeta),
}

type ConnMeta struct {
	UserID   int
	Username string
	Conn     *websocket.Conn
}

func (m *RoomManager) Join(room string, connID string, c *websocket.Conn, userID int, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[room]; !ok {
		m.rooms[room] = make(map[string]*websocket.Conn)
	}
	m.rooms[room][connID] = c
	m.connMeta[connID] = ConnMeta{UserID: userID, Username: username, Conn: c}
}

func (m *RoomManager) Leave(room string, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[room]; ok {
		delete(m.rooms[room], connID)
		if len(m.rooms[room]) == 0 {
			delete(m.rooms, room)
		}
	}
}

// Broadcast sends a message to every connection currently in the room,
// optionally excluding one. Writes are serialized per connection by SendJSON.
func (m *RoomManager) Broadcast(room string, message interface{}, excludeConnID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if connections, ok := m.rooms[room]; ok {
		for id, conn := range connections {
			if id == excludeConnID {
				continue
			}
			if err := utils.SendJSON(conn, message); err != nil {
				utils.LogError(err, "Broadcast")
				// Let the connection's read loop handle the disconnect.
			}
		}
	}
}

// IsUserOnline checks if any active connection belongs to the given user
func (m *RoomManager) IsUserOnline(userID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, meta := range m.connMeta {
		if meta.UserID == userID {
			return true
		}
	}
	return false
}

// RegisterConnection stores metadata for a new websocket connection
func (m *RoomManager) RegisterConnection(connID string, userID int, username string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connMeta[connID] = ConnMeta{UserID: userID, Username: username, Conn: conn}
}

// UnregisterConnection removes metadata and removes the connection from any rooms
func (m *RoomManager) UnregisterConnection(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connMeta[connID]; !exists {
		return
	}

	for room, conns := range m.rooms {
		if _, ok := conns[connID]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(m.rooms, room)
			}
		}
	}

	delete(m.connMeta, connID)
}

// IsUserInRoom checks if a user is currently in a specific room
func (m *RoomManager) IsUserInRoom(userID int, roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roomConns, ok := m.rooms[roomID]
	if !ok {
		return false
	}

	for connID := range roomConns {
		if meta, ok := m.connMeta[connID]; ok && meta.UserID == userID {
			return true
		}
	}
	return false
}

// SendToUser sends a message to all connections of a specific user
func (m *RoomManager) SendToUser(userID int, message interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, meta := range m.connMeta {
		if meta.UserID == userID && meta.Conn != nil {
			if err := utils.SendJSON(meta.Conn, message); err != nil {
				utils.LogError(err, "SendToUser")
			}
		}
	}
}
