package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oliullah100/kolmo/internal/realtime"
)

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Kolmo chat server is running!")
}

// OnlineCounter reports how many users are connected.
type OnlineCounter interface {
	OnlineCount() int
}

// HealthzHandler reports liveness and the number of connected users as JSON.
func HealthzHandler(counter OnlineCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"onlineUsers": counter.OnlineCount(),
			"timestamp":   realtime.Timestamp(time.Now()),
		})
	}
}

// TestPageHandler serves a developer page for exercising the WebSocket
// endpoint by hand: paste a token, connect, send events.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Kolmo WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events { border: 1px solid #ccc; height: 320px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; font-family: monospace; }
        input[type="text"] { width: 260px; padding: 5px; margin: 0 10px 5px 0; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:disabled { background-color: #999; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Kolmo WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="token" placeholder="Bearer token">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="receiver" placeholder="Receiver user id">
        <input type="text" id="content" placeholder="Message" disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="typingButton" onclick="sendTyping()" disabled>Typing</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        let typing = false;
        const eventsDiv = document.getElementById('events');
        const contentInput = document.getElementById('content');
        const sendButton = document.getElementById('sendButton');
        const typingButton = document.getElementById('typingButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function log(prefix, text) {
            const line = document.createElement('div');
            line.textContent = prefix + ' ' + text;
            eventsDiv.appendChild(line);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            contentInput.disabled = !connected;
            sendButton.disabled = !connected;
            typingButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function send(event) {
            const frame = JSON.stringify(event);
            ws.send(frame);
            log('>', frame);
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const token = encodeURIComponent(document.getElementById('token').value.trim());
            ws = new WebSocket(scheme + location.host + '/ws?token=' + token);
            ws.onopen = function() { updateStatus(true); };
            ws.onmessage = function(event) { log('<', event.data); };
            ws.onclose = function(event) {
                log('x', 'closed ' + event.code + ' ' + event.reason);
                updateStatus(false);
                ws = null;
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const content = contentInput.value.trim();
            const receiverId = document.getElementById('receiver').value.trim();
            if (!content || !receiverId || !ws) {
                return;
            }
            send({ type: 'send_message', receiverId: receiverId, content: content, messageType: 'TEXT', messageId: 'local-' + Date.now() });
            contentInput.value = '';
        }

        function sendTyping() {
            const receiverId = document.getElementById('receiver').value.trim();
            if (!receiverId || !ws) {
                return;
            }
            typing = !typing;
            send({ type: typing ? 'typing_start' : 'typing_stop', receiverId: receiverId });
        }

        contentInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
