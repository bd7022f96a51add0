package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	chatmodels "mealio_backend/internal/models/chat"
	"mealio_backend/internal/realtime/feed"
)

type MessageRepository interface {
	// Create persists a message and publishes its record, with the sender
	// name joined in, on the change feed in the same transaction.
	Create(message *chatmodels.Message, senderName string) error
	// FindByConversation returns the persisted history, oldest first,
	// with sender profiles joined.
	FindByConversation(conversationID string) ([]chatmodels.MessageRecord, error)
}

type messageRepository struct {
	db   *gorm.DB
	feed feed.Publisher
}

func NewMessageRepository(db *gorm.DB, publisher feed.Publisher) MessageRepository {
	return &messageRepository{db: db, feed: publisher}
}

func (r *messageRepository) Create(message *chatmodels.Message, senderName string) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		record := chatmodels.MessageRecord{
			ID:             message.ID,
			ConversationID: message.ConversationID,
			SenderID:       message.SenderID,
			SenderName:     senderName,
			Content:        message.Content,
			CreatedAt:      message.CreatedAt,
		}
		return r.feed.Notify(tx, chatmodels.FeedTable, feed.OpInsert, record)
	})
}

func (r *messageRepository) FindByConversation(conversationID string) ([]chatmodels.MessageRecord, error) {
	var records []chatmodels.MessageRecord
	err := r.db.
		Table("chat.messages AS m").
		Select("m.id, m.conversation_id, m.sender_id, u.name AS sender_name, m.content, m.created_at").
		Joins("LEFT JOIN users u ON u.id = m.sender_id").
		Where("m.conversation_id = ?", conversationID).
		Order("m.created_at ASC").
		Scan(&records).Error
	return records, err
}
