// Package testhelpers provides common utilities for the end-to-end tests of
// the chat server.
//
// It builds a fully routed test server, mints tokens, and wraps WebSocket
// dialing and event reading so integration tests stay short.
package testhelpers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/oliullah100/kolmo/internal/auth"
	"github.com/oliullah100/kolmo/internal/realtime"
	"github.com/oliullah100/kolmo/internal/server"
)

// TestSecret signs every token minted by Env.
const TestSecret = "integration-secret"

// TestOrigin is the browser origin the test server allows.
const TestOrigin = "http://localhost:8080"

// Env is a running server with its real-time manager.
type Env struct {
	Server  *httptest.Server
	Manager *realtime.Manager
	Signer  *auth.Signer
}

// NewEnv starts a routed test server. opts.Verifier, Logger and CheckOrigin
// are filled in; the other fields are passed through.
func NewEnv(t *testing.T, opts realtime.Options) *Env {
	t.Helper()

	verifier := auth.NewJWTVerifier(TestSecret)
	opts.Verifier = verifier
	opts.Logger = zerolog.Nop()
	opts.CheckOrigin = server.NewOriginPolicy([]string{TestOrigin}, zerolog.Nop()).CheckOrigin

	manager := realtime.NewManager(opts)
	handler := server.SetupRoutes(server.Routes{Manager: manager, Verifier: verifier, Logger: zerolog.Nop()})

	env := &Env{
		Server:  httptest.NewServer(handler),
		Manager: manager,
		Signer:  auth.NewSigner(TestSecret),
	}
	t.Cleanup(env.Server.Close)
	return env
}

// Token returns a valid one-hour token for userID.
func (e *Env) Token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.Signer.Issue(userID, "USER", time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}

// WebSocketURL returns the ws:// URL of /ws, with token if not empty.
func (e *Env) WebSocketURL(token string) string {
	url := "ws" + strings.TrimPrefix(e.Server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

// Connect opens a WebSocket for userID and waits for connection_established.
func (e *Env) Connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(e.WebSocketURL(e.Token(t, userID)))
	if err != nil {
		t.Fatalf("Failed to connect %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	WaitForEvent(t, conn, realtime.KindConnectionEstablished, 3*time.Second)
	return conn
}

// WaitOnline blocks until the manager reports userID's online state as want.
func (e *Env) WaitOnline(t *testing.T, userID string, want bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if e.Manager.IsOnline(userID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("User %s online state never became %v", userID, want)
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// ConnectWebSocket dials url with the allowed test origin.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url sending origin, if not empty.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEvent writes v as one JSON text frame.
func SendEvent(conn *websocket.Conn, v any) error {
	return conn.WriteJSON(v)
}

// ReadEvent reads one JSON event, waiting at most timeout.
func ReadEvent(conn *websocket.Conn, timeout time.Duration) (map[string]any, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var event map[string]any
	if err := json.Unmarshal(frame, &event); err != nil {
		return nil, err
	}
	return event, nil
}

// WaitForEvent reads until an event of kind arrives, skipping others.
func WaitForEvent(t *testing.T, conn *websocket.Conn, kind string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %s", kind)
		}
		event, err := ReadEvent(conn, remaining)
		if err != nil {
			t.Fatalf("Error waiting for %s: %v", kind, err)
		}
		if event["type"] == kind {
			return event
		}
	}
}

// ExpectNoEvent fails if any event of kind arrives within d. Other events
// are consumed. A read timeout leaves the connection unusable, so this must
// be the last read on conn.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, kind string, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		event, err := ReadEvent(conn, remaining)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return
			}
			t.Fatalf("Unexpected read error: %v", err)
		}
		if event["type"] == kind {
			t.Fatalf("Unexpected %s event: %v", kind, event)
		}
	}
}

// ReadCloseError reads until the server closes the connection and returns
// the close frame it sent.
func ReadCloseError(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		if !errors.As(err, &closeErr) {
			t.Fatalf("Expected close frame, got %v", err)
		}
		return closeErr
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
