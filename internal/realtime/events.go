package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Inbound event kinds.
const (
	KindSendMessage          = "send_message"
	KindTypingStart          = "typing_start"
	KindTypingStop           = "typing_stop"
	KindMarkRead             = "mark_read"
	KindGetNotifications     = "get_notifications"
	KindMarkNotificationRead = "mark_notification_read"
)

// Outbound event kinds.
const (
	KindConnectionEstablished  = "connection_established"
	KindNewMessage             = "new_message"
	KindMessageSent            = "message_sent"
	KindUserTyping             = "user_typing"
	KindMessageRead            = "message_read"
	KindUserStatus             = "user_status"
	KindNotificationsRequested = "notifications_requested"
	KindNotificationMarkedRead = "notification_marked_read"
)

// DefaultMessageType is applied to send_message frames that omit messageType.
const DefaultMessageType = "TEXT"

const timestampLayout = "2006-01-02T15:04:05.000Z"

var (
	// ErrMalformedFrame marks frames that are not JSON objects or lack a
	// required field.
	ErrMalformedFrame = errors.New("realtime: malformed frame")
	// ErrUnknownEventKind marks frames whose type is not recognised.
	ErrUnknownEventKind = errors.New("realtime: unknown event kind")
)

// Timestamp renders t the way every outbound event carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// InboundEvent is one parsed client frame.
type InboundEvent interface {
	Kind() string
}

// ClientRef is an identifier chosen by the client and echoed back verbatim.
// It holds the raw JSON of a string or number; empty means absent.
type ClientRef []byte

// StringRef returns the ClientRef for the JSON string s.
func StringRef(s string) ClientRef {
	raw, _ := json.Marshal(s)
	return ClientRef(raw)
}

// String returns the id as text, unquoting string ids.
func (r ClientRef) String() string {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	return string(r)
}

// MarshalJSON writes the id in the form it arrived in.
func (r ClientRef) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON accepts a JSON string, a number or null.
func (r *ClientRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = nil
		return nil
	}
	switch {
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
	default:
		return fmt.Errorf("client id must be a string or number, got %s", data)
	}
	*r = append(ClientRef(nil), data...)
	return nil
}

// SendMessage asks the server to push a chat message to ReceiverID.
type SendMessage struct {
	ReceiverID  string    `json:"receiverId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	MessageID   ClientRef `json:"messageId"`
}

func (SendMessage) Kind() string { return KindSendMessage }

// TypingStart signals that the sender began typing to ReceiverID.
type TypingStart struct {
	ReceiverID string `json:"receiverId"`
}

func (TypingStart) Kind() string { return KindTypingStart }

// TypingStop signals that the sender stopped typing to ReceiverID.
type TypingStop struct {
	ReceiverID string `json:"receiverId"`
}

func (TypingStop) Kind() string { return KindTypingStop }

// MarkRead reports that MessageID from OriginalSenderID was read.
type MarkRead struct {
	MessageID        string `json:"messageId"`
	OriginalSenderID string `json:"originalSenderId"`
}

func (MarkRead) Kind() string { return KindMarkRead }

// GetNotifications requests the sender's notifications.
type GetNotifications struct{}

func (GetNotifications) Kind() string { return KindGetNotifications }

// MarkNotificationRead marks one notification as read.
type MarkNotificationRead struct {
	NotificationID string `json:"notificationId"`
}

func (MarkNotificationRead) Kind() string { return KindMarkNotificationRead }

type envelope struct {
	Type string `json:"type"`
}

// ParseInbound decodes a frame into its typed event. Errors wrap
// ErrMalformedFrame or ErrUnknownEventKind.
func ParseInbound(frame []byte) (InboundEvent, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch env.Type {
	case KindSendMessage:
		var ev SendMessage
		if err := decodePayload(frame, &ev); err != nil {
			return nil, err
		}
		if err := requireField("receiverId", ev.ReceiverID); err != nil {
			return nil, err
		}
		if ev.MessageType == "" {
			ev.MessageType = DefaultMessageType
		}
		return ev, nil

	case KindTypingStart:
		var ev TypingStart
		if err := decodePayload(frame, &ev); err != nil {
			return nil, err
		}
		if err := requireField("receiverId", ev.ReceiverID); err != nil {
			return nil, err
		}
		return ev, nil

	case KindTypingStop:
		var ev TypingStop
		if err := decodePayload(frame, &ev); err != nil {
			return nil, err
		}
		if err := requireField("receiverId", ev.ReceiverID); err != nil {
			return nil, err
		}
		return ev, nil

	case KindMarkRead:
		var ev MarkRead
		if err := decodePayload(frame, &ev); err != nil {
			return nil, err
		}
		if err := requireField("messageId", ev.MessageID); err != nil {
			return nil, err
		}
		if err := requireField("originalSenderId", ev.OriginalSenderID); err != nil {
			return nil, err
		}
		return ev, nil

	case KindGetNotifications:
		return GetNotifications{}, nil

	case KindMarkNotificationRead:
		var ev MarkNotificationRead
		if err := decodePayload(frame, &ev); err != nil {
			return nil, err
		}
		if err := requireField("notificationId", ev.NotificationID); err != nil {
			return nil, err
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, env.Type)
	}
}

func decodePayload(frame []byte, v any) error {
	if err := json.Unmarshal(frame, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: missing %s", ErrMalformedFrame, field)
	}
	return nil
}

// OutboundEvent is a server-to-client payload.
type OutboundEvent interface {
	Kind() string
}

// ConnectionEstablished confirms a successful handshake to the new client.
type ConnectionEstablished struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (e ConnectionEstablished) Kind() string { return e.Type }

// NewMessage carries a chat message to its receiver.
type NewMessage struct {
	Type        string    `json:"type"`
	SenderID    string    `json:"senderId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	MessageID   ClientRef `json:"messageId,omitempty"`
	Timestamp   string    `json:"timestamp"`
}

func (e NewMessage) Kind() string { return e.Type }

// MessageSent acknowledges a send_message to its sender.
type MessageSent struct {
	Type      string    `json:"type"`
	MessageID ClientRef `json:"messageId,omitempty"`
	Timestamp string    `json:"timestamp"`
}

func (e MessageSent) Kind() string { return e.Type }

// UserTyping tells a receiver that UserID started or stopped typing.
type UserTyping struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp string `json:"timestamp"`
}

func (e UserTyping) Kind() string { return e.Type }

// MessageRead tells the original sender that ReadBy read MessageID.
type MessageRead struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
	Timestamp string `json:"timestamp"`
}

func (e MessageRead) Kind() string { return e.Type }

// UserStatus announces a presence change.
type UserStatus struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	IsOnline  bool   `json:"isOnline"`
	Timestamp string `json:"timestamp"`
}

func (e UserStatus) Kind() string { return e.Type }

// NotificationsRequested acknowledges get_notifications.
type NotificationsRequested struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func (e NotificationsRequested) Kind() string { return e.Type }

// NotificationMarkedRead acknowledges mark_notification_read.
type NotificationMarkedRead struct {
	Type           string `json:"type"`
	NotificationID string `json:"notificationId"`
	Timestamp      string `json:"timestamp"`
}

func (e NotificationMarkedRead) Kind() string { return e.Type }

// NewMessageEvent builds a new_message event. REST handlers use it to push
// messages they persisted.
func NewMessageEvent(senderID, messageID, content, messageType string, at time.Time) NewMessage {
	if messageType == "" {
		messageType = DefaultMessageType
	}
	var ref ClientRef
	if messageID != "" {
		ref = StringRef(messageID)
	}
	return NewMessage{
		Type:        KindNewMessage,
		SenderID:    senderID,
		Content:     content,
		MessageType: messageType,
		MessageID:   ref,
		Timestamp:   Timestamp(at),
	}
}

// MessageReadEvent builds a message_read event.
func MessageReadEvent(messageID, readBy string, at time.Time) MessageRead {
	return MessageRead{
		Type:      KindMessageRead,
		MessageID: messageID,
		ReadBy:    readBy,
		Timestamp: Timestamp(at),
	}
}

// UserStatusEvent builds a user_status event.
func UserStatusEvent(userID string, online bool, at time.Time) UserStatus {
	return UserStatus{
		Type:      KindUserStatus,
		UserID:    userID,
		IsOnline:  online,
		Timestamp: Timestamp(at),
	}
}
