package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 9, 14, 5, 7, 250*int(time.Millisecond), time.UTC)

const testTimestamp = "2024-03-09T14:05:07.250Z"

func fixedClock() time.Time { return testNow }

// fakeHandle records everything pushed to it.
type fakeHandle struct {
	id string

	mu          sync.Mutex
	frames      [][]byte
	closed      bool
	closeCode   int
	closeReason string
	sendErr     error
	attempts    int
}

func newFakeHandle(id string) *fakeHandle {
	return &fakeHandle{id: id}
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Send(frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts++
	if h.sendErr != nil {
		return h.sendErr
	}
	if h.closed {
		return ErrHandleClosed
	}
	h.frames = append(h.frames, frame)
	return nil
}

func (h *fakeHandle) Close(code int, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		h.closeCode = code
		h.closeReason = reason
	}
	return nil
}

func (h *fakeHandle) reset() {
	h.mu.Lock()
	h.frames = nil
	h.mu.Unlock()
}

func (h *fakeHandle) events(t *testing.T) []map[string]any {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]map[string]any, 0, len(h.frames))
	for _, frame := range h.frames {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(frame, &ev))
		out = append(out, ev)
	}
	return out
}

func (h *fakeHandle) kinds(t *testing.T) []string {
	t.Helper()
	var kinds []string
	for _, ev := range h.events(t) {
		kinds = append(kinds, ev["type"].(string))
	}
	return kinds
}

func (h *fakeHandle) sendAttempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

func (h *fakeHandle) closedWith() (int, string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCode, h.closeReason, h.closed
}

func zeroLogger() zerolog.Logger { return zerolog.Nop() }

func newTestManager(opts Options) *Manager {
	opts.Logger = zerolog.Nop()
	if opts.Now == nil {
		opts.Now = fixedClock
	}
	return NewManager(opts)
}

// connect registers a fresh fake handle for userID and forgets the
// connection_established frame.
func connect(m *Manager, userID, handleID string) *fakeHandle {
	h := newFakeHandle(handleID)
	m.Register(userID, h)
	h.reset()
	return h
}
