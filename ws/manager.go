package ws

import (
	"sync"

	"mealio_backend/internal/logger"
)

// Manager tracks connected websocket clients by user id and pushes
// payloads to them. It implements notify.Pusher for the in-app channel.
type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			if old, ok := m.clients[client.ID]; ok {
				// One live session per user; the newer connection wins.
				// The old session's views stay open until its ReadPump
				// exits, so its send path must stay safe to call.
				old.closeSend()
				if old.Conn != nil {
					old.Conn.Close()
				}
			}
			m.clients[client.ID] = client
			total := len(m.clients)
			m.mu.Unlock()
			logger.Info("websocket client registered", "user_id", client.ID, "total", total)

		case client := <-m.unregister:
			m.mu.Lock()
			if current, ok := m.clients[client.ID]; ok && current == client {
				client.closeSend()
				delete(m.clients, client.ID)
			}
			total := len(m.clients)
			m.mu.Unlock()
			logger.Info("websocket client unregistered", "user_id", client.ID, "total", total)
		}
	}
}

// PushToUser delivers a payload to the user's live session, if any.
// Reports whether the user was connected.
func (m *Manager) PushToUser(userID string, payload any) bool {
	m.mu.RLock()
	client, ok := m.clients[userID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	if client.trySend(payload) {
		return true
	}

	// Send queue full: the client is stalled, drop the connection.
	logger.Warn("websocket send queue full, disconnecting", "user_id", userID)
	go func() { m.unregister <- client }()
	return false
}

func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) IsOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.clients[userID]
	return exists
}
