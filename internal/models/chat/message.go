package chat

import "time"

// FeedTable is the change-feed table name for chat messages.
const FeedTable = "messages"

// Message is the persisted form of a conversation message.
type Message struct {
	ID             string `gorm:"primaryKey;type:uuid"`
	ConversationID string `gorm:"index;not null"`
	SenderID       string `gorm:"index;not null"`
	Content        string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (Message) TableName() string {
	return "chat.messages"
}

// MessageRecord is the wire form of a message row as it appears on the
// persisted change feed, with the sender profile joined in.
type MessageRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
