package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mealio_backend/internal/logger"
	"mealio_backend/internal/reconcile"
	"mealio_backend/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendQueueSize  = 64
)

// ---------------- Wire types ----------------

type clientAction struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	LocalID        string `json:"local_id,omitempty"`
}

type serverEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Data           any    `json:"data,omitempty"`
}

type conversationSnapshot struct {
	Messages []reconcile.Message `json:"messages"`
	Degraded bool                `json:"degraded"`
}

// ---------------- Client ----------------

type Client struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan any
	Manager *Manager

	chat *services.ChatService

	mu    sync.Mutex
	views map[string]*services.ConversationView

	sendMu     sync.Mutex
	sendClosed bool
}

// trySend queues a payload unless the session has shut down or the queue
// is full. Safe from any goroutine, including view callbacks that may
// fire after the session was replaced by a newer connection.
func (c *Client) trySend(payload any) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// closeSend shuts the session down exactly once. Only the manager calls
// this; all writers go through trySend so the close can never race a send.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}

func NewClient(userID string, conn *websocket.Conn, manager *Manager, chat *services.ChatService) *Client {
	return &Client{
		ID:      userID,
		Conn:    conn,
		Send:    make(chan any, sendQueueSize),
		Manager: manager,
		chat:    chat,
		views:   make(map[string]*services.ConversationView),
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.closeViews()
		c.Manager.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "user_id", c.ID, "error", err)
			}
			return
		}

		var action clientAction
		if err := json.Unmarshal(raw, &action); err != nil {
			c.sendError("", "invalid message format")
			continue
		}
		c.handleAction(action)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(payload); err != nil {
				logger.Warn("websocket write error", "user_id", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ---------------- Actions ----------------

func (c *Client) handleAction(action clientAction) {
	switch action.Action {
	case "join_conversation":
		c.joinConversation(action.ConversationID)
	case "leave_conversation":
		c.leaveConversation(action.ConversationID)
	case "send_message":
		c.sendMessage(action.ConversationID, action.Content)
	case "retry_message":
		c.retryMessage(action.ConversationID, action.LocalID)
	case "refresh_conversation":
		c.refreshConversation(action.ConversationID)
	case "typing":
		c.typing(action.ConversationID)
	default:
		c.sendError(action.ConversationID, "unknown action: "+action.Action)
	}
}

func (c *Client) joinConversation(conversationID string) {
	if conversationID == "" {
		c.sendError("", "conversation_id is required")
		return
	}

	c.mu.Lock()
	if _, ok := c.views[conversationID]; ok {
		c.mu.Unlock()
		c.pushSnapshot(conversationID)
		return
	}
	c.mu.Unlock()

	view, err := c.chat.OpenConversation(context.Background(), conversationID, c.ID, func(m reconcile.Message) {
		c.pushMessage(conversationID, m)
	})
	if err != nil {
		logger.Error("open conversation failed", "user_id", c.ID, "conversation_id", conversationID, "error", err)
		c.sendError(conversationID, "could not open conversation")
		return
	}

	view.OnTyping(func(userID string) {
		c.trySend(serverEvent{
			Type:           "typing",
			ConversationID: conversationID,
			Data:           map[string]string{"user_id": userID},
		})
	})

	c.mu.Lock()
	c.views[conversationID] = view
	c.mu.Unlock()

	c.pushSnapshot(conversationID)
}

func (c *Client) leaveConversation(conversationID string) {
	c.mu.Lock()
	view, ok := c.views[conversationID]
	if ok {
		delete(c.views, conversationID)
	}
	c.mu.Unlock()

	if ok {
		view.Close()
	}
}

func (c *Client) sendMessage(conversationID, content string) {
	view := c.view(conversationID)
	if view == nil {
		c.sendError(conversationID, "join the conversation first")
		return
	}
	if content == "" {
		c.sendError(conversationID, "content is required")
		return
	}

	if _, err := view.Timeline.Send(context.Background(), content); err != nil {
		// The message stays in the timeline flagged unsent; the snapshot
		// pushed by the change callback carries that state to the client.
		logger.Warn("message send failed", "user_id", c.ID, "conversation_id", conversationID, "error", err)
	}
}

func (c *Client) retryMessage(conversationID, localID string) {
	view := c.view(conversationID)
	if view == nil {
		c.sendError(conversationID, "join the conversation first")
		return
	}
	if localID == "" {
		c.sendError(conversationID, "local_id is required")
		return
	}

	if _, err := view.Timeline.Retry(context.Background(), localID); err != nil {
		logger.Warn("message retry failed", "user_id", c.ID, "conversation_id", conversationID, "error", err)
	}
}

func (c *Client) refreshConversation(conversationID string) {
	view := c.view(conversationID)
	if view == nil {
		c.sendError(conversationID, "join the conversation first")
		return
	}

	if err := view.Timeline.Refresh(context.Background()); err != nil {
		logger.Warn("conversation refresh failed", "user_id", c.ID, "conversation_id", conversationID, "error", err)
		c.sendError(conversationID, "refresh failed")
		return
	}
	c.pushSnapshot(conversationID)
}

func (c *Client) typing(conversationID string) {
	view := c.view(conversationID)
	if view == nil {
		return
	}
	view.Typing(context.Background())
}

// ---------------- Helpers ----------------

func (c *Client) view(conversationID string) *services.ConversationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.views[conversationID]
}

func (c *Client) pushSnapshot(conversationID string) {
	view := c.view(conversationID)
	if view == nil {
		return
	}

	snapshot := conversationSnapshot{
		Messages: view.Timeline.Messages(),
		Degraded: view.Timeline.LoadErr() != nil,
	}
	if !c.trySend(serverEvent{Type: "conversation_snapshot", ConversationID: conversationID, Data: snapshot}) {
		logger.Warn("snapshot dropped", "user_id", c.ID, "conversation_id", conversationID)
	}
}

func (c *Client) pushMessage(conversationID string, m reconcile.Message) {
	if !c.trySend(serverEvent{Type: "conversation_message", ConversationID: conversationID, Data: m}) {
		logger.Warn("message event dropped", "user_id", c.ID, "conversation_id", conversationID)
	}
}

func (c *Client) sendError(conversationID, message string) {
	c.trySend(serverEvent{Type: "error", ConversationID: conversationID, Data: map[string]string{"message": message}})
}

func (c *Client) closeViews() {
	c.mu.Lock()
	views := c.views
	c.views = make(map[string]*services.ConversationView)
	c.mu.Unlock()

	for _, view := range views {
		view.Close()
	}
}
