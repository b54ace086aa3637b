package message

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oliullah100/kolmo/internal/realtime"
)

// Notifier pushes an event to a user's live connection, if there is one.
type Notifier interface {
	SendToUser(userID string, ev realtime.OutboundEvent) bool
}

// Service applies the message use cases on top of a Repository.
type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService builds a Service. notifier may be nil, in which case nothing is
// pushed.
func NewService(repo Repository, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With().Str("component", "message").Logger(),
	}
}

// Send stores a new message from senderID and pushes it to the receiver.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput) (Message, error) {
	in, err := in.Normalize()
	if err != nil {
		return Message{}, err
	}

	stored, err := s.repo.CreateMessage(ctx, Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		ReceiverID:  in.ReceiverID,
		Content:     in.Content,
		MessageType: in.MessageType,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return Message{}, err
	}

	s.push(stored.ReceiverID, realtime.NewMessageEvent(stored.SenderID, stored.ID, stored.Content, stored.MessageType, stored.CreatedAt))
	return stored, nil
}

// MarkRead flags messageID as read by readerID and tells the original sender.
func (s *Service) MarkRead(ctx context.Context, messageID, readerID string) (Message, error) {
	m, err := s.repo.MarkRead(ctx, messageID)
	if err != nil {
		return Message{}, err
	}
	s.push(m.SenderID, realtime.MessageReadEvent(m.ID, readerID, s.now()))
	return m, nil
}

// Conversations lists userID's conversation partners, most recent first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// History returns the messages between two users, oldest first.
func (s *Service) History(ctx context.Context, userA, userB string) ([]Message, error) {
	return s.repo.ChatHistory(ctx, userA, userB)
}

// UnreadCount returns the number of unread messages addressed to userID.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func (s *Service) push(userID string, ev realtime.OutboundEvent) {
	if s.notifier == nil {
		return
	}
	if !s.notifier.SendToUser(userID, ev) {
		s.logger.Debug().Str("user", userID).Str("type", ev.Kind()).Msg("Recipient not connected; stored only")
	}
}
