// Package server routes inbound frames to broadcast, room, direct delivery,
// or authentication based on the declared message type.
package server

import (
	"encoding/json"
	"log/slog"
	"time"
)

// dispatch processes one inbound frame for the connection. Every failure is
// answered on the same connection and leaves it open; only transport errors
// close connections, and those are handled by the pumps.
func (h *Hub) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Debug("malformed frame", "addr", c.addr, "error", err)
		h.sendTo(c, errorMessage(msgMalformed))
		return
	}

	if env.Type == TypeAuth {
		h.gate.ProcessAuthMessage(c, env)
		return
	}

	state, ok := h.registry.Get(c)
	if !ok {
		// Cleanup already ran for this connection; drop the frame.
		return
	}

	// Everything except auth requires a bound identity.
	if state.Identity == "" {
		h.sendTo(c, errorMessage(msgMustAuthenticate))
		return
	}

	switch env.Type {
	case TypeCommand:
		h.handleCommand(c, state.Identity, env.Command)
	case TypePrivate:
		h.handlePrivate(c, state.Identity, env)
	case TypeMessage:
		h.handleBroadcast(c, state, env)
	default:
		h.sendTo(c, errorMessage(msgUnknownType+": "+env.Type))
	}
}

// handlePrivate delivers a direct message to every live connection of the
// target identity. An absent recipient is reported to the sender only.
func (h *Hub) handlePrivate(c *Client, identity string, env Envelope) {
	if env.To == "" || env.Body == "" {
		h.sendTo(c, errorMessage("Los mensajes privados requieren destinatario y cuerpo."))
		return
	}

	targets := h.registry.ConnectionsFor(env.To)
	if len(targets) == 0 {
		h.sendTo(c, errorMessage("Destinatario '"+env.To+"' no encontrado."))
		return
	}

	h.deliver(targets, ChatMessage{
		Type:      TypePrivate,
		From:      identity,
		Body:      env.Body,
		Timestamp: time.Now().UTC(),
	})
	h.sink.Record(AuditMessage, identity, c.addr, c.port, env.Body, env.MessageHash)
}

// handleBroadcast delivers to every connection in the sender's room, or to
// every authenticated connection when the sender is not in a room.
func (h *Hub) handleBroadcast(c *Client, state SessionState, env Envelope) {
	if env.Body == "" {
		h.sendTo(c, errorMessage("El mensaje requiere cuerpo."))
		return
	}

	var targets []*Client
	if state.Room != "" {
		for _, member := range h.registry.InRoom(state.Room) {
			targets = append(targets, member.Client)
		}
	} else {
		targets = h.registry.Authenticated()
	}

	h.deliver(targets, ChatMessage{
		Type:      TypeMessage,
		From:      state.Identity,
		Room:      state.Room,
		Body:      env.Body,
		Timestamp: time.Now().UTC(),
	})
	h.sink.Record(AuditMessage, state.Identity, c.addr, c.port, env.Body, env.MessageHash)
}
