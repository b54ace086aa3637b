// Package message persists direct messages between users and exposes them
// over REST. Newly stored messages and read receipts are pushed to online
// users through the real-time layer.
package message

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message types accepted by the REST API.
const (
	TypeText  = "TEXT"
	TypeLink  = "LINK"
	TypeFile  = "FILE"
	TypeImage = "IMAGE"
)

var (
	// ErrValidation marks requests rejected before reaching the store.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a message id does not exist.
	ErrNotFound = errors.New("message not found")
)

// Participant is the public profile attached to each side of a message.
type Participant struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Message is one stored direct message.
type Message struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	ReceiverID  string      `json:"receiverId"`
	Content     string      `json:"content"`
	MessageType string      `json:"messageType"`
	IsRead      bool        `json:"isRead"`
	CreatedAt   time.Time   `json:"createdAt"`
	Sender      Participant `json:"sender"`
	Receiver    Participant `json:"receiver"`
}

// Conversation summarises the latest exchange with one partner.
type Conversation struct {
	ConversationUserID string    `json:"conversationUserId"`
	UserName           string    `json:"userName"`
	ProfilePicture     string    `json:"profilePicture,omitempty"`
	LastMessage        string    `json:"lastMessage"`
	LastMessageTime    time.Time `json:"lastMessageTime"`
	UnreadCount        int       `json:"unreadCount"`
}

// SendInput is the body of POST /api/v1/messages.
type SendInput struct {
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

// Normalize trims the input, applies the default type and validates it.
func (in SendInput) Normalize() (SendInput, error) {
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.MessageType = strings.ToUpper(strings.TrimSpace(in.MessageType))

	if in.ReceiverID == "" {
		return in, fmt.Errorf("%w: receiver ID is required", ErrValidation)
	}
	if strings.TrimSpace(in.Content) == "" {
		return in, fmt.Errorf("%w: message content is required", ErrValidation)
	}
	if in.MessageType == "" {
		in.MessageType = TypeText
	}
	switch in.MessageType {
	case TypeText, TypeLink, TypeFile, TypeImage:
	default:
		return in, fmt.Errorf("%w: unsupported message type %q", ErrValidation, in.MessageType)
	}
	return in, nil
}

// conversationsFrom groups messages, newest first, into one entry per
// partner. unread maps partner id to messages from that partner still unread
// by userID.
func conversationsFrom(userID string, newestFirst []Message, unread map[string]int) []Conversation {
	seen := make(map[string]bool)
	conversations := make([]Conversation, 0)

	for _, m := range newestFirst {
		partner := m.Sender
		if m.SenderID == userID {
			partner = m.Receiver
		}
		if seen[partner.ID] {
			continue
		}
		seen[partner.ID] = true
		conversations = append(conversations, Conversation{
			ConversationUserID: partner.ID,
			UserName:           partner.Name,
			ProfilePicture:     partner.ProfilePicture,
			LastMessage:        m.Content,
			LastMessageTime:    m.CreatedAt,
			UnreadCount:        unread[partner.ID],
		})
	}
	return conversations
}
