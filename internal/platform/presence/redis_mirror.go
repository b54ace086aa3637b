// Package presence mirrors the real-time presence feed into Redis so other
// services can read who is online without talking to this process.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oliullah100/kolmo/internal/realtime"
)

const defaultTimeout = 2 * time.Second

// redisClient defines the subset of go-redis the mirror needs.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// MirrorOptions configures a RedisMirror.
type MirrorOptions struct {
	// Prefix namespaces every key and the channel, e.g. "kolmo".
	Prefix string
	// TTL expires online keys that are never deleted, e.g. after a crash.
	// Keys of connected users are kept alive by RunRefresh. Zero keeps them
	// until the user goes offline.
	TTL time.Duration
	// Timeout bounds each Redis round trip. Defaults to two seconds.
	Timeout time.Duration
}

// RedisMirror is a realtime.PresenceSubscriber. On every change it writes or
// deletes <prefix>:online:<userId> and publishes the change as JSON on
// <prefix>:presence.
type RedisMirror struct {
	client  redisClient
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	logger  zerolog.Logger
}

var _ realtime.PresenceSubscriber = (*RedisMirror)(nil)

// OnlineLister reports the users currently connected to this process.
type OnlineLister interface {
	OnlineUsers() []string
}

// NewRedisMirror is the constructor for the RedisMirror.
func NewRedisMirror(client redisClient, opts MirrorOptions, logger zerolog.Logger) (*RedisMirror, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if opts.Prefix == "" {
		opts.Prefix = "kolmo"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &RedisMirror{
		client:  client,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		timeout: opts.Timeout,
		logger:  logger.With().Str("component", "redis_presence_mirror").Logger(),
	}, nil
}

// OnlineKey returns the key holding userID's online marker.
func (m *RedisMirror) OnlineKey(userID string) string {
	return fmt.Sprintf("%s:online:%s", m.prefix, userID)
}

// Channel returns the pub/sub channel presence changes are published on.
func (m *RedisMirror) Channel() string {
	return m.prefix + ":presence"
}

// PresenceChanged mirrors one change. Failures are logged; presence in this
// process is never affected by Redis being unavailable.
func (m *RedisMirror) PresenceChanged(change realtime.PresenceChange) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.Mirror(ctx, change); err != nil {
		m.logger.Warn().Err(err).Str("user", change.UserID).Bool("online", change.Online).Msg("Failed to mirror presence change")
	}
}

// Mirror writes change to Redis.
func (m *RedisMirror) Mirror(ctx context.Context, change realtime.PresenceChange) error {
	key := m.OnlineKey(change.UserID)

	if change.Online {
		if err := m.client.Set(ctx, key, realtime.Timestamp(change.At), m.ttl).Err(); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	} else {
		if err := m.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to del %s: %w", key, err)
		}
	}

	payload, err := json.Marshal(realtime.UserStatusEvent(change.UserID, change.Online, change.At))
	if err != nil {
		return fmt.Errorf("failed to marshal presence change: %w", err)
	}
	if err := m.client.Publish(ctx, m.Channel(), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish presence change: %w", err)
	}
	return nil
}

// Refresh extends the TTL of every given user's online key. Expire never
// creates a key, so a user who went offline meanwhile stays deleted.
func (m *RedisMirror) Refresh(ctx context.Context, userIDs []string) error {
	var errs []error
	for _, userID := range userIDs {
		key := m.OnlineKey(userID)
		if err := m.client.Expire(ctx, key, m.ttl).Err(); err != nil {
			errs = append(errs, fmt.Errorf("failed to expire %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// RunRefresh refreshes the online keys of lister's users every half TTL until
// ctx is done. It returns immediately when no TTL is configured.
func (m *RedisMirror) RunRefresh(ctx context.Context, lister OnlineLister) {
	if m.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, m.timeout)
			if err := m.Refresh(refreshCtx, lister.OnlineUsers()); err != nil {
				m.logger.Warn().Err(err).Msg("Failed to refresh online keys")
			}
			cancel()
		}
	}
}
