// Package server defines the wire envelope types exchanged with chat clients
// and small helpers shared across the gateway.
package server

import (
	"strings"
	"time"
)

// Message type discriminators accepted on the inbound side of the protocol.
const (
	TypeAuth    = "auth"
	TypeCommand = "command"
	TypePrivate = "private"
	TypeMessage = "message"

	TypeSystem = "system"
	TypeError  = "error"
)

// Envelope is the inbound JSON frame. Only the fields relevant to the
// declared Type are expected to be populated.
type Envelope struct {
	Type        string `json:"type"`
	Token       string `json:"token,omitempty"`
	User        string `json:"user,omitempty"`
	Command     string `json:"command,omitempty"`
	To          string `json:"to,omitempty"`
	Body        string `json:"body,omitempty"`
	MessageHash string `json:"messageHash,omitempty"`
}

// ControlMessage is the outbound frame for system notices and errors.
type ControlMessage struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

// ChatMessage is the outbound frame for delivered broadcast, room, and
// private messages. Room is empty for global and private deliveries.
type ChatMessage struct {
	Type      string    `json:"type"`
	From      string    `json:"from"`
	Room      string    `json:"room,omitempty"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

func systemMessage(body string) ControlMessage {
	return ControlMessage{Type: TypeSystem, Body: body}
}

func errorMessage(body string) ControlMessage {
	return ControlMessage{Type: TypeError, Body: body}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
