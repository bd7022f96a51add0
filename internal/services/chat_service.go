package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"mealio_backend/internal/logger"
	chatmodels "mealio_backend/internal/models/chat"
	"mealio_backend/internal/realtime"
	"mealio_backend/internal/reconcile"
	"mealio_backend/internal/repositories"
	chatrepo "mealio_backend/internal/repositories/chat"
)

// EventTyping is the ephemeral typing-indicator broadcast; never persisted.
const EventTyping = "typing"

type typingPayload struct {
	UserID string `json:"user_id"`
}

// ConversationTopic names the real-time topic of a conversation.
func ConversationTopic(conversationID string) string {
	return "conversation:" + conversationID
}

// ChatService owns the send path of a conversation message: optimistic
// append, ephemeral broadcast and durable write all start here.
type ChatService struct {
	messages  chatrepo.MessageRepository
	users     repositories.UserRepository
	transport realtime.Transport
	tracker   *realtime.Tracker
}

func NewChatService(
	messages chatrepo.MessageRepository,
	users repositories.UserRepository,
	transport realtime.Transport,
	tracker *realtime.Tracker,
) *ChatService {
	return &ChatService{
		messages:  messages,
		users:     users,
		transport: transport,
		tracker:   tracker,
	}
}

// History fetches the persisted timeline of a conversation, oldest first.
// Used by timelines as their one-shot historical fetch.
func (s *ChatService) History(_ context.Context, conversationID string) ([]reconcile.Message, error) {
	records, err := s.messages.FindByConversation(conversationID)
	if err != nil {
		return nil, err
	}

	msgs := make([]reconcile.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, reconcile.FromRecord(rec))
	}
	return msgs, nil
}

// Persist writes a message durably and assigns its server id, implementing
// reconcile.Persister.
func (s *ChatService) Persist(m *reconcile.Message) error {
	message := &chatmodels.Message{
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.SentAt,
	}
	if err := s.messages.Create(message, m.SenderName); err != nil {
		return err
	}
	m.ID = message.ID
	return nil
}

// SendDirect persists a message outside any live view. Open timelines
// pick it up through the persisted change feed.
func (s *ChatService) SendDirect(_ context.Context, conversationID, userID, content string) (reconcile.Message, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return reconcile.Message{}, err
	}

	m := reconcile.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		SenderName:     user.Name,
		Content:        content,
		SentAt:         time.Now().UTC(),
		Source:         reconcile.SourcePersisted,
	}
	if err := s.Persist(&m); err != nil {
		return reconcile.Message{}, err
	}
	return m, nil
}

// OpenConversation opens a live view: history fetched, broadcast and
// persisted-change subscriptions attached, presence joined. A failed
// history fetch still yields a usable view (Timeline.LoadErr is set and
// live broadcasts display).
func (s *ChatService) OpenConversation(ctx context.Context, conversationID, userID string, onChange func(reconcile.Message)) (*ConversationView, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return nil, err
	}

	ch, err := s.transport.Open(ctx, ConversationTopic(conversationID))
	if err != nil {
		return nil, err
	}

	s.tracker.Watch(ch)
	if err := s.tracker.Join(ctx, ch, userID); err != nil {
		logger.CtxWithError(ctx, "presence join failed", err, "conversation_id", conversationID)
	}

	timeline := reconcile.NewTimeline(
		conversationID,
		userID,
		user.Name,
		ch,
		s.History,
		s,
		reconcile.WithOnChange(onChange),
	)
	if err := timeline.Open(ctx); err != nil {
		// Degraded mode: the view opens empty, live messages still arrive.
		logger.CtxWithError(ctx, "conversation opened degraded", err, "conversation_id", conversationID)
	}

	return &ConversationView{
		Timeline:       timeline,
		conversationID: conversationID,
		userID:         userID,
		ch:             ch,
		tracker:        s.tracker,
	}, nil
}

// ConversationView is one participant's open view of a conversation. Its
// state is discarded on Close; the persisted feed remains the durable
// source of truth.
type ConversationView struct {
	Timeline *reconcile.Timeline

	conversationID string
	userID         string
	ch             realtime.Channel
	tracker        *realtime.Tracker
	closeOnce      sync.Once
}

func (v *ConversationView) ConversationID() string {
	return v.conversationID
}

// Typing broadcasts an ephemeral typing hint.
func (v *ConversationView) Typing(ctx context.Context) error {
	return v.ch.Publish(ctx, EventTyping, typingPayload{UserID: v.userID})
}

// OnTyping registers a callback for other participants' typing hints.
func (v *ConversationView) OnTyping(fn func(userID string)) {
	v.ch.OnBroadcast(EventTyping, func(payload json.RawMessage) {
		var p typingPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		if p.UserID != v.userID {
			fn(p.UserID)
		}
	})
}

// Close leaves presence and releases every subscription. Idempotent; not
// closing a view is a leak the rest of the system tolerates, but callers
// should close on view teardown.
func (v *ConversationView) Close() error {
	var err error
	v.closeOnce.Do(func() {
		if leaveErr := v.tracker.Leave(context.Background(), v.ch, v.userID); leaveErr != nil {
			logger.Warn("presence leave failed", "conversation_id", v.conversationID, "error", leaveErr)
		}
		err = v.Timeline.Close()
	})
	return err
}
