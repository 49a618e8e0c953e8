// Package testhelpers provides shared utilities for the gateway integration
// tests: dialing WebSocket clients against a test server, driving the auth
// and room-join handshakes, and asserting on received frames.
package testhelpers

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plataforma-estudio/chat-gateway/internal/server"
)

// Frame is a decoded outbound frame as seen by a test client. It covers both
// control and chat message shapes.
type Frame struct {
	Type      string    `json:"type"`
	Body      string    `json:"body"`
	From      string    `json:"from"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocketURL converts an httptest server URL into the ws:// endpoint URL.
func WebSocketURL(t *testing.T, baseURL string) string {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	return u.String()
}

// Dial connects a WebSocket client with the Origin header the test server
// expects, and registers cleanup of the connection.
func Dial(t *testing.T, testServer *httptest.Server) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", testServer.URL)

	conn, resp, err := websocket.DefaultDialer.Dial(WebSocketURL(t, testServer.URL), header)
	if err != nil {
		t.Fatalf("failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn
}

// Send writes an envelope to the connection.
func Send(t *testing.T, conn *websocket.Conn, env server.Envelope) {
	t.Helper()
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("failed to send envelope: %v", err)
	}
}

// ReadFrame reads and decodes the next frame within the timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("failed to decode frame %q: %v", raw, err)
	}
	return frame
}

// ExpectFrame reads the next frame and asserts its type and that the body
// contains the given substring.
func ExpectFrame(t *testing.T, conn *websocket.Conn, wantType, bodyContains string) Frame {
	t.Helper()
	frame := ReadFrame(t, conn, 2*time.Second)
	if frame.Type != wantType {
		t.Fatalf("expected frame type %q, got %q (body %q)", wantType, frame.Type, frame.Body)
	}
	if bodyContains != "" && !strings.Contains(frame.Body, bodyContains) {
		t.Fatalf("expected body to contain %q, got %q", bodyContains, frame.Body)
	}
	return frame
}

// ExpectNoFrame asserts that nothing arrives on the connection within the
// timeout.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, but received %q", raw)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of frame: %v", err)
}

// AuthenticateDev drives the welcome plus dev-mode auth handshake for the
// given placeholder username.
func AuthenticateDev(t *testing.T, conn *websocket.Conn, user string) {
	t.Helper()
	ExpectFrame(t, conn, server.TypeSystem, "autenticarte")
	Send(t, conn, server.Envelope{Type: server.TypeAuth, User: user})
	ExpectFrame(t, conn, server.TypeSystem, user)
}

// JoinRoom issues a join command and consumes the confirmation frame.
func JoinRoom(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	Send(t, conn, server.Envelope{Type: server.TypeCommand, Command: "join " + room})
	ExpectFrame(t, conn, server.TypeSystem, room)
}
