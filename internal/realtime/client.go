package realtime

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Close codes beyond the RFC 6455 set.
const (
	CloseSuperseded = 4000
)

// clientOwner receives frames and the final close of a Client.
type clientOwner interface {
	dispatch(c *Client, frame []byte)
	teardown(c *Client)
}

type clientConfig struct {
	sendBuffer     int
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	rateLimit      RateLimit
}

// Client is the WebSocket-backed Handle for one authenticated user. A read
// pump feeds the owner's router; a write pump drains the bounded send buffer.
type Client struct {
	id     string
	userID string
	addr   string
	conn   *websocket.Conn
	owner  clientOwner
	cfg    clientConfig
	logger zerolog.Logger

	send    chan []byte
	done    chan struct{}
	limiter *rateLimiter

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

var _ Handle = (*Client)(nil)

func newClient(conn *websocket.Conn, userID, addr string, owner clientOwner, cfg clientConfig, logger zerolog.Logger) *Client {
	id := uuid.NewString()
	if conn != nil {
		conn.SetReadLimit(cfg.maxMessageSize)
	}
	return &Client{
		id:      id,
		userID:  userID,
		addr:    addr,
		conn:    conn,
		owner:   owner,
		cfg:     cfg,
		logger:  logger.With().Str("user", userID).Str("connection", id).Str("remote", addr).Logger(),
		send:    make(chan []byte, cfg.sendBuffer),
		done:    make(chan struct{}),
		limiter: newRateLimiter(cfg.rateLimit),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user of this connection.
func (c *Client) UserID() string { return c.userID }

// Send queues frame for the write pump without blocking.
func (c *Client) Send(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrHandleClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a close frame with code and reason and drops the connection.
func (c *Client) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.markClosed()
		deadline := time.Now().Add(c.cfg.writeWait)
		if werr := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); werr != nil && !isExpectedCloseError(werr) {
			c.logger.Debug().Err(werr).Msg("Error writing close frame")
		}
		err = c.conn.Close()
		if isExpectedCloseError(err) {
			err = nil
		}
	})
	return err
}

// shutdown drops the connection without a close frame.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.markClosed()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug().Err(err).Msg("Error closing connection")
		}
	})
}

func (c *Client) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

// run starts both pumps. The caller has already added 2 to wg.
func (c *Client) run(wg *sync.WaitGroup) {
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	go func() {
		defer wg.Done()
		c.readPump()
	}()
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.pongWait)); err != nil {
		c.logger.Debug().Err(err).Msg("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.pongWait))
	})
}

func (c *Client) readPump() {
	defer func() {
		c.owner.teardown(c)
		c.shutdown()
	}()

	c.setupReadConnection()

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn().Int("frame_type", messageType).Msg("Ignoring non-text frame")
			continue
		}

		if !c.limiter.allow() {
			c.logger.Warn().Int("burst", c.cfg.rateLimit.Burst).Dur("interval", c.cfg.rateLimit.Interval).Msg("Rate limit exceeded; discarding frame")
			continue
		}

		c.owner.dispatch(c, frame)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn().Int64("limit", c.cfg.maxMessageSize).Msg("Frame exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Info().Err(err).Msg("Client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info().Err(err).Msg("Connection closed")
	default:
		c.logger.Warn().Err(err).Msg("WebSocket read error")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// write sends one frame. Each outbound event is its own text frame.
func (c *Client) write(messageType int, payload []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("Error setting write deadline")
		return false
	}
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn().Err(err).Msg("Error writing frame")
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}
