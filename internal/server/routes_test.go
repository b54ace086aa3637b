package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oliullah100/kolmo/internal/auth"
	"github.com/oliullah100/kolmo/internal/message"
	"github.com/oliullah100/kolmo/internal/realtime"
)

const routesSecret = "routes-secret"

func newTestRoutes(t *testing.T, withMessages bool) (*httptest.Server, *realtime.Manager) {
	t.Helper()
	verifier := auth.NewJWTVerifier(routesSecret)
	manager := realtime.NewManager(realtime.Options{
		Verifier:    verifier,
		Logger:      zerolog.Nop(),
		CheckOrigin: NewOriginPolicy([]string{"http://localhost:8080"}, zerolog.Nop()).CheckOrigin,
	})

	rt := Routes{Manager: manager, Verifier: verifier, Logger: zerolog.Nop()}
	if withMessages {
		// A nil store is never reached: every request below fails auth
		// or validation first.
		svc := message.NewService(nil, manager, zerolog.Nop())
		rt.Messages = message.NewHandler(svc, zerolog.Nop())
	}

	srv := httptest.NewServer(SetupRoutes(rt))
	t.Cleanup(srv.Close)
	return srv, manager
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealthRoutes(t *testing.T) {
	srv, _ := newTestRoutes(t, false)

	resp, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Kolmo chat server is running!", body)

	resp, body = get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(0), health["onlineUsers"])
}

func TestTestPageAndMetrics(t *testing.T) {
	srv, _ := newTestRoutes(t, false)

	resp, body := get(t, srv.URL+"/test")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "Kolmo WebSocket Test")

	// Generate at least one instrumented request first.
	get(t, srv.URL+"/")
	resp, body = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "kolmo_http_requests_total")
}

func TestMessagesAPIMountedBehindAuth(t *testing.T) {
	srv, _ := newTestRoutes(t, true)

	resp, _ := get(t, srv.URL+"/api/v1/messages/unread/U1")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.NewSigner(routesSecret).Issue("U1", "USER", time.Hour)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/messages", strings.NewReader(`{"receiverId":"","content":"x"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessagesAPIAbsentWithoutStore(t *testing.T) {
	srv, _ := newTestRoutes(t, false)
	resp, _ := get(t, srv.URL+"/api/v1/messages/unread/U1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketRouteChecksOrigin(t *testing.T) {
	srv, manager := newTestRoutes(t, false)
	token, err := auth.NewSigner(routesSecret).Issue("U1", "USER", time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token

	header := http.Header{}
	header.Set("Origin", "http://evil.test")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:8080")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "connection_established", ev["type"])
	assert.True(t, manager.IsOnline("U1"))
}
