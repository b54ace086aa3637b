package realtime

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/oliullah100/kolmo/internal/metrics"
)

// Router dispatches inbound frames to per-kind handlers. Pushes go straight
// to the recipient's handle; nothing is queued for offline users.
type Router struct {
	deliver *deliverer
	now     func() time.Time
	logger  zerolog.Logger
}

func newRouter(deliver *deliverer, now func() time.Time, logger zerolog.Logger) *Router {
	return &Router{deliver: deliver, now: now, logger: logger}
}

// Dispatch parses frame and routes it on behalf of senderID. origin is the
// connection the frame arrived on and receives any acknowledgement. Malformed
// frames and unknown kinds are logged and reported through the returned
// error; the sender is never told.
func (r *Router) Dispatch(senderID string, origin Handle, frame []byte) error {
	ev, err := ParseInbound(frame)
	if err != nil {
		metrics.RecordInbound("invalid")
		r.logger.Warn().Err(err).Str("user", senderID).Msg("Ignoring inbound frame")
		return err
	}
	metrics.RecordInbound(ev.Kind())
	r.Route(senderID, origin, ev)
	return nil
}

// Route invokes the handler for an already parsed event.
func (r *Router) Route(senderID string, origin Handle, ev InboundEvent) {
	switch ev := ev.(type) {
	case SendMessage:
		r.sendMessage(senderID, origin, ev)
	case TypingStart:
		r.typing(senderID, ev.ReceiverID, true)
	case TypingStop:
		r.typing(senderID, ev.ReceiverID, false)
	case MarkRead:
		r.markRead(senderID, ev)
	case GetNotifications:
		r.ack(senderID, origin, NotificationsRequested{
			Type:      KindNotificationsRequested,
			Timestamp: Timestamp(r.now()),
		})
	case MarkNotificationRead:
		r.ack(senderID, origin, NotificationMarkedRead{
			Type:           KindNotificationMarkedRead,
			NotificationID: ev.NotificationID,
			Timestamp:      Timestamp(r.now()),
		})
	default:
		r.logger.Warn().Str("user", senderID).Str("type", ev.Kind()).Msg("No handler for event kind")
	}
}

// sendMessage pushes new_message to an online receiver and always
// acknowledges the sender with the same timestamp.
func (r *Router) sendMessage(senderID string, origin Handle, ev SendMessage) {
	ts := Timestamp(r.now())

	_ = r.deliver.toUser(ev.ReceiverID, NewMessage{
		Type:        KindNewMessage,
		SenderID:    senderID,
		Content:     ev.Content,
		MessageType: ev.MessageType,
		MessageID:   ev.MessageID,
		Timestamp:   ts,
	})

	r.ack(senderID, origin, MessageSent{
		Type:      KindMessageSent,
		MessageID: ev.MessageID,
		Timestamp: ts,
	})
}

func (r *Router) typing(senderID, receiverID string, isTyping bool) {
	_ = r.deliver.toUser(receiverID, UserTyping{
		Type:      KindUserTyping,
		UserID:    senderID,
		IsTyping:  isTyping,
		Timestamp: Timestamp(r.now()),
	})
}

func (r *Router) markRead(readerID string, ev MarkRead) {
	_ = r.deliver.toUser(ev.OriginalSenderID, MessageReadEvent(ev.MessageID, readerID, r.now()))
}

// ack replies on the originating connection, or on the sender's registered
// connection when the frame did not come through a handle.
func (r *Router) ack(senderID string, origin Handle, ev OutboundEvent) {
	if origin != nil {
		_ = r.deliver.toHandle(senderID, origin, ev)
		return
	}
	_ = r.deliver.toUser(senderID, ev)
}
