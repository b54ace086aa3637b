package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/oliullah100/kolmo/internal/auth"
	"github.com/oliullah100/kolmo/internal/metrics"
)

// Defaults applied by NewManager to zero-valued Options fields.
const (
	DefaultSendBuffer     = 256
	DefaultMaxMessageSize = 64 * 1024
	DefaultWriteWait      = 10 * time.Second
	DefaultPongWait       = 60 * time.Second
)

// Options configures a Manager.
type Options struct {
	Verifier auth.Verifier
	Logger   zerolog.Logger

	// CheckOrigin is handed to the WebSocket upgrader. Nil keeps gorilla's
	// same-host check.
	CheckOrigin func(r *http.Request) bool

	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	RateLimit      RateLimit

	// CloseSuperseded closes the previous connection of a user who
	// reconnects. When false the old handle is dropped from the registry but
	// left open.
	CloseSuperseded bool

	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.RateLimit.Burst <= 0 {
		o.RateLimit.Burst = 20
	}
	if o.RateLimit.Interval <= 0 {
		o.RateLimit.Interval = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Manager owns the connection lifecycle: it authenticates WebSocket
// handshakes, keeps the registry consistent across connects and disconnects,
// publishes presence, and exposes a push API for HTTP handlers.
type Manager struct {
	opts     Options
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	registry *Registry
	presence *PresenceHub
	deliver  *deliverer
	router   *Router

	// presenceMu orders each registry change with its presence publication,
	// so subscribers see a user's transitions in registry order. Presence
	// subscribers must not call Register or Teardown.
	presenceMu sync.Mutex

	wg      sync.WaitGroup
	mu      sync.Mutex
	closing bool
	clients map[*Client]struct{}
}

// NewManager builds a Manager with its own registry, presence hub and router.
// The user_status broadcaster is subscribed to the presence hub.
func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()
	logger := opts.Logger.With().Str("component", "realtime").Logger()

	registry := NewRegistry()
	deliver := newDeliverer(registry, logger)

	m := &Manager{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		registry: registry,
		presence: NewPresenceHub(),
		deliver:  deliver,
		router:   newRouter(deliver, opts.Now, logger),
		clients:  make(map[*Client]struct{}),
	}
	m.presence.Subscribe(&StatusBroadcaster{deliver: deliver, muted: m.isClosing})
	return m
}

// Registry exposes the connection registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Presence exposes the presence hub so extra subscribers can be attached.
func (m *Manager) Presence() *PresenceHub { return m.presence }

// Router exposes the event router.
func (m *Manager) Router() *Router { return m.router }

// ServeHTTP upgrades GET /ws requests. The bearer token comes from the
// "token" query parameter or the Authorization header. Authentication happens
// after the upgrade so that rejections carry a WebSocket close code.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if m.isClosing() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	userID, err := m.Authenticate(credentialFrom(r))
	if err != nil {
		m.reject(conn, r.RemoteAddr, err)
		return
	}

	client := newClient(conn, userID, r.RemoteAddr, m, clientConfig{
		sendBuffer:     m.opts.SendBuffer,
		maxMessageSize: m.opts.MaxMessageSize,
		writeWait:      m.opts.WriteWait,
		pongWait:       m.opts.PongWait,
		pingPeriod:     m.opts.PingPeriod,
		rateLimit:      m.opts.RateLimit,
	}, m.logger)

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		_ = client.Close(websocket.CloseGoingAway, "Server shutting down")
		return
	}
	m.clients[client] = struct{}{}
	m.wg.Add(2)
	m.mu.Unlock()

	// Register before the pumps start so a read error cannot tear down an
	// entry that does not exist yet.
	m.Register(userID, client)
	client.run(&m.wg)
}

func credentialFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return auth.BearerToken(r.Header.Get("Authorization"))
}

// Authenticate verifies a handshake credential and returns its user id.
func (m *Manager) Authenticate(token string) (string, error) {
	if m.opts.Verifier == nil {
		return "", auth.ErrInvalidToken
	}
	identity, err := m.opts.Verifier.VerifyToken(token)
	if err != nil {
		return "", err
	}
	return identity.UserID, nil
}

func (m *Manager) reject(conn *websocket.Conn, remote string, err error) {
	reason := "Invalid token"
	label := "invalid"
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		reason = "Authentication required"
		label = "missing"
	case errors.Is(err, auth.ErrExpiredToken):
		label = "expired"
	}
	metrics.RecordAuthFailure(label)
	m.logger.Warn().Err(err).Str("remote", remote).Msg("Rejected WebSocket connection")

	deadline := time.Now().Add(m.opts.WriteWait)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if werr := conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !isExpectedCloseError(werr) {
		m.logger.Debug().Err(werr).Msg("Error writing policy close frame")
	}
	if cerr := conn.Close(); cerr != nil && !isExpectedCloseError(cerr) {
		m.logger.Debug().Err(cerr).Msg("Error closing rejected connection")
	}
}

// Register makes handle the live connection of userID, announces the user as
// online to everyone else and confirms the connection to the client.
func (m *Manager) Register(userID string, handle Handle) {
	now := m.opts.Now()

	m.presenceMu.Lock()
	prev, replaced := m.registry.Put(userID, handle)
	count := m.registry.Count()
	metrics.SetConnectedUsers(count)
	m.presence.Publish(PresenceChange{UserID: userID, Online: true, At: now})
	m.presenceMu.Unlock()

	log := m.logger.With().Str("user", userID).Str("connection", handle.ID()).Logger()
	if replaced {
		log.Info().Str("superseded", prev.ID()).Msg("User reconnected; replacing previous connection")
		if m.opts.CloseSuperseded {
			if err := prev.Close(CloseSuperseded, "Superseded by a newer connection"); err != nil {
				log.Debug().Err(err).Msg("Error closing superseded connection")
			}
		}
	}
	log.Info().Int("online", count).Msg("User connected")

	_ = m.deliver.toHandle(userID, handle, ConnectionEstablished{
		Type:      KindConnectionEstablished,
		UserID:    userID,
		Message:   "Connected to chat server",
		Timestamp: Timestamp(now),
	})
}

// Teardown removes userID's entry if it still belongs to handle and
// announces the user as offline. It reports whether anything was removed;
// repeated or stale calls are no-ops.
func (m *Manager) Teardown(userID string, handle Handle) bool {
	m.presenceMu.Lock()
	defer m.presenceMu.Unlock()

	if !m.registry.RemoveIf(userID, handle) {
		return false
	}
	count := m.registry.Count()
	metrics.SetConnectedUsers(count)
	m.logger.Info().Str("user", userID).Str("connection", handle.ID()).Int("online", count).Msg("User disconnected")

	m.presence.Publish(PresenceChange{UserID: userID, Online: false, At: m.opts.Now()})
	return true
}

// Dispatch routes one inbound frame from handle on behalf of userID.
func (m *Manager) Dispatch(userID string, handle Handle, frame []byte) error {
	return m.router.Dispatch(userID, handle, frame)
}

func (m *Manager) dispatch(c *Client, frame []byte) {
	_ = m.router.Dispatch(c.userID, c, frame)
}

func (m *Manager) teardown(c *Client) {
	m.mu.Lock()
	delete(m.clients, c)
	m.mu.Unlock()

	m.Teardown(c.userID, c)
}

// SendToUser pushes ev to userID if connected and reports whether the push
// was accepted.
func (m *Manager) SendToUser(userID string, ev OutboundEvent) bool {
	return m.deliver.toUser(userID, ev) == nil
}

// Broadcast pushes ev to every connected user and returns how many accepted it.
func (m *Manager) Broadcast(ev OutboundEvent) int {
	return m.deliver.toAllExcept("", ev)
}

// IsOnline reports whether userID has a live connection.
func (m *Manager) IsOnline(userID string) bool {
	return m.registry.IsOnline(userID)
}

// OnlineCount returns the number of connected users.
func (m *Manager) OnlineCount() int {
	return m.registry.Count()
}

// OnlineUsers returns the ids of every connected user, in no particular order.
func (m *Manager) OnlineUsers() []string {
	entries := m.registry.Snapshot()
	users := make([]string, 0, len(entries))
	for _, entry := range entries {
		users = append(users, entry.UserID)
	}
	return users
}

func (m *Manager) isTracked(c *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.clients[c]
	return ok
}

func (m *Manager) isClosing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing
}

// Shutdown refuses new connections, closes every live connection with
// "going away" and waits for their goroutines or ctx, whichever ends first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	handles := make([]Handle, 0, len(m.clients))
	for c := range m.clients {
		handles = append(handles, c)
	}
	m.mu.Unlock()

	// Handles registered directly through Register are not tracked as
	// clients; the registry still knows them.
	for _, entry := range m.registry.Snapshot() {
		if c, ok := entry.Handle.(*Client); ok && m.isTracked(c) {
			continue
		}
		handles = append(handles, entry.Handle)
	}

	m.logger.Info().Int("connections", len(handles)).Msg("Shutting down real-time connections")
	for _, handle := range handles {
		if err := handle.Close(websocket.CloseGoingAway, "Server shutting down"); err != nil {
			m.logger.Debug().Err(err).Str("connection", handle.ID()).Msg("Error closing connection during shutdown")
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info().Msg("Real-time shutdown completed")
		return nil
	case <-ctx.Done():
		m.logger.Warn().Msg("Real-time shutdown timed out; some connections may still be open")
		return ctx.Err()
	}
}
