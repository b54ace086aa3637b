package message

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const selectMessage = `SELECT m.id, m.sender_id, m.receiver_id, m.content, m.message_type, m.is_read, m.created_at,
	COALESCE(s.name, ''), COALESCE(s.profile_picture, ''),
	COALESCE(r.name, ''), COALESCE(r.profile_picture, '')
FROM messages m
LEFT JOIN users s ON s.id = m.sender_id
LEFT JOIN users r ON r.id = m.receiver_id`

const (
	insertMessageQuery = `INSERT INTO messages (id, sender_id, receiver_id, content, message_type, is_read, created_at) VALUES ($1, $2, $3, $4, $5, FALSE, $6)`
	getMessageQuery    = selectMessage + ` WHERE m.id = $1`
	historyQuery       = selectMessage + ` WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1) ORDER BY m.created_at ASC`
	userMessagesQuery  = selectMessage + ` WHERE m.sender_id = $1 OR m.receiver_id = $1 ORDER BY m.created_at DESC`
	unreadBySender     = `SELECT sender_id, COUNT(*) FROM messages WHERE receiver_id = $1 AND NOT is_read GROUP BY sender_id`
	markReadQuery      = `UPDATE messages SET is_read = TRUE WHERE id = $1`
	unreadCountQuery   = `SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND NOT is_read`
)

// Repository is the persistence surface the service depends on.
type Repository interface {
	CreateMessage(ctx context.Context, m Message) (Message, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	ChatHistory(ctx context.Context, userA, userB string) ([]Message, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	MarkRead(ctx context.Context, id string) (Message, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// Store is the Postgres-backed Repository.
type Store struct {
	db *sql.DB
}

var _ Repository = (*Store)(nil)

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateMessage inserts m and returns it with both participants resolved.
func (s *Store) CreateMessage(ctx context.Context, m Message) (Message, error) {
	_, err := s.db.ExecContext(ctx, insertMessageQuery,
		m.ID,
		m.SenderID,
		m.ReceiverID,
		m.Content,
		m.MessageType,
		m.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return s.GetMessage(ctx, m.ID)
}

// GetMessage loads one message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, getMessageQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message %s: %w", id, err)
	}
	return m, nil
}

// ChatHistory returns every message exchanged between two users, oldest first.
func (s *Store) ChatHistory(ctx context.Context, userA, userB string) ([]Message, error) {
	messages, err := s.queryMessages(ctx, historyQuery, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return messages, nil
}

// ListConversations returns one summary per partner, most recent first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	messages, err := s.queryMessages(ctx, userMessagesQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, unreadBySender, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread by sender: %w", err)
	}
	defer rows.Close()

	unread := make(map[string]int)
	for rows.Next() {
		var sender string
		var count int
		if err := rows.Scan(&sender, &count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		unread[sender] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count unread by sender: %w", err)
	}

	return conversationsFrom(userID, messages, unread), nil
}

// MarkRead flags a message as read and returns it.
func (s *Store) MarkRead(ctx context.Context, id string) (Message, error) {
	res, err := s.db.ExecContext(ctx, markReadQuery, id)
	if err != nil {
		return Message{}, fmt.Errorf("mark message %s read: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Message{}, fmt.Errorf("mark message %s read: %w", id, err)
	}
	if affected == 0 {
		return Message{}, ErrNotFound
	}
	return s.GetMessage(ctx, id)
}

// UnreadCount returns how many messages addressed to userID are unread.
func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, unreadCountQuery, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	err := row.Scan(
		&m.ID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.MessageType,
		&m.IsRead,
		&m.CreatedAt,
		&m.Sender.Name,
		&m.Sender.ProfilePicture,
		&m.Receiver.Name,
		&m.Receiver.ProfilePicture,
	)
	m.Sender.ID = m.SenderID
	m.Receiver.ID = m.ReceiverID
	return m, err
}
