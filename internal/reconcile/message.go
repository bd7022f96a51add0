// Package reconcile merges conversation messages arriving from three
// sources (optimistic local sends, ephemeral broadcasts, the persisted
// change feed) into one ordered, deduplicated timeline per conversation.
package reconcile

import (
	"time"

	chat "mealio_backend/internal/models/chat"
)

// Source ranks the fidelity of a message representation. Higher values
// win when the same logical message arrives more than once.
type Source int

const (
	SourceOptimistic Source = iota
	SourceBroadcast
	SourcePersisted
)

func (s Source) String() string {
	switch s {
	case SourceOptimistic:
		return "optimistic"
	case SourceBroadcast:
		return "broadcast"
	case SourcePersisted:
		return "persisted"
	}
	return "unknown"
}

// BroadcastEventMessage is the broadcast event name chat messages travel on.
const BroadcastEventMessage = "message"

// Message is the canonical, source-normalized view of one conversation
// message.
type Message struct {
	// ID is the server-assigned id; empty for an optimistic entry that has
	// not been confirmed yet.
	ID string `json:"id,omitempty"`
	// LocalID is a stable client-side handle, kept across promotions so a
	// consumer can match an optimistic entry with its confirmed form.
	LocalID        string    `json:"local_id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sent_at"`
	Source         Source    `json:"source"`
	// Unsent marks an optimistic entry whose persistence failed; it stays
	// visible so the user can retry.
	Unsent bool `json:"unsent,omitempty"`
}

// BroadcastPayload is the raw shape of a chat message on the broadcast
// transport.
type BroadcastPayload struct {
	Message   string    `json:"message"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

// FromBroadcast normalizes an ephemeral broadcast payload.
func FromBroadcast(conversationID string, p BroadcastPayload) Message {
	return Message{
		ConversationID: conversationID,
		SenderID:       p.UserID,
		SenderName:     p.UserName,
		Content:        p.Message,
		SentAt:         p.Timestamp,
		Source:         SourceBroadcast,
	}
}

// FromRecord normalizes a persisted message row from the change feed.
func FromRecord(rec chat.MessageRecord) Message {
	return Message{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		SenderID:       rec.SenderID,
		SenderName:     rec.SenderName,
		Content:        rec.Content,
		SentAt:         rec.CreatedAt,
		Source:         SourcePersisted,
	}
}
