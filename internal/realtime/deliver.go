package realtime

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/oliullah100/kolmo/internal/metrics"
)

var (
	// ErrDeliveryMiss means the recipient has no registered connection.
	ErrDeliveryMiss = errors.New("realtime: recipient offline")
	// ErrSendBufferFull means the recipient's write buffer is saturated.
	ErrSendBufferFull = errors.New("realtime: send buffer full")
	// ErrHandleClosed means the recipient connection is already closing.
	ErrHandleClosed = errors.New("realtime: connection closed")
)

// deliverer pushes outbound events to registered handles. Every push is best
// effort: misses and write failures are logged and counted, never returned
// to the event's originator.
type deliverer struct {
	registry *Registry
	logger   zerolog.Logger
}

func newDeliverer(registry *Registry, logger zerolog.Logger) *deliverer {
	return &deliverer{registry: registry, logger: logger}
}

// toUser pushes ev to userID's current connection.
func (d *deliverer) toUser(userID string, ev OutboundEvent) error {
	handle, ok := d.registry.Get(userID)
	if !ok {
		metrics.RecordPush(ev.Kind(), metrics.ResultMiss)
		d.logger.Debug().Str("user", userID).Str("type", ev.Kind()).Msg("Recipient offline; skipping push")
		return ErrDeliveryMiss
	}
	return d.toHandle(userID, handle, ev)
}

// toHandle pushes ev to a specific connection.
func (d *deliverer) toHandle(userID string, handle Handle, ev OutboundEvent) error {
	frame, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error().Err(err).Str("type", ev.Kind()).Msg("Failed to encode outbound event")
		metrics.RecordPush(ev.Kind(), metrics.ResultFailed)
		return err
	}
	return d.sendFrame(userID, handle, ev.Kind(), frame)
}

// toAllExcept pushes ev to every registered user other than userID and
// returns how many pushes were accepted.
func (d *deliverer) toAllExcept(userID string, ev OutboundEvent) int {
	frame, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error().Err(err).Str("type", ev.Kind()).Msg("Failed to encode outbound event")
		return 0
	}

	delivered := 0
	d.registry.ForEachExcept(userID, func(entry Entry) {
		if d.sendFrame(entry.UserID, entry.Handle, ev.Kind(), frame) == nil {
			delivered++
		}
	})
	return delivered
}

func (d *deliverer) sendFrame(userID string, handle Handle, kind string, frame []byte) error {
	if err := handle.Send(frame); err != nil {
		metrics.RecordPush(kind, metrics.ResultFailed)
		level := zerolog.WarnLevel
		if errors.Is(err, ErrHandleClosed) {
			level = zerolog.DebugLevel
		}
		d.logger.WithLevel(level).Err(err).Str("user", userID).Str("connection", handle.ID()).Str("type", kind).Msg("Push failed")
		return err
	}
	metrics.RecordPush(kind, metrics.ResultDelivered)
	return nil
}
