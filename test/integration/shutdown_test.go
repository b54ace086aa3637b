package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oliullah100/kolmo/internal/realtime"
	"github.com/oliullah100/kolmo/test/testhelpers"
)

// TestGracefulShutdownWithClients verifies that active connections are
// closed with "going away" and that new connections are refused.
func TestGracefulShutdownWithClients(t *testing.T) {
	env := testhelpers.NewEnv(t, realtime.Options{})

	const numClients = 5
	clients := make([]*websocket.Conn, 0, numClients)
	for _, id := range []string{"u0", "u1", "u2", "u3", "u4"} {
		clients = append(clients, env.Connect(t, id))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.Manager.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	for i, conn := range clients {
		closeErr := testhelpers.ReadCloseError(t, conn)
		if closeErr.Code != websocket.CloseGoingAway {
			t.Errorf("Client %d: expected close code %d, got %d", i, websocket.CloseGoingAway, closeErr.Code)
		}
	}

	if got := env.Manager.OnlineCount(); got != 0 {
		t.Errorf("Expected registry to be empty after shutdown, got %d", got)
	}

	_, resp, err := websocket.DefaultDialer.Dial(env.WebSocketURL(env.Token(t, "late")), nil)
	if err == nil {
		t.Fatal("Expected connection after shutdown to fail")
	}
	if resp == nil {
		t.Fatal("Expected an HTTP response after shutdown")
	}
	resp.Body.Close()
	testhelpers.AssertStatusCode(t, resp, http.StatusServiceUnavailable)
}

// TestShutdownWithoutClients verifies shutdown returns promptly when idle.
func TestShutdownWithoutClients(t *testing.T) {
	env := testhelpers.NewEnv(t, realtime.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := env.Manager.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Idle shutdown took %v", elapsed)
	}
}
