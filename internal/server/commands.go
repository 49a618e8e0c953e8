// Package server parses room-management commands. The command layer only
// ever mutates state through the room directory.
package server

import "strings"

const msgUnknownCommand = "Comando desconocido. Comandos: join <sala>, leave, list"

// handleCommand interprets a command frame for an authenticated connection.
func (h *Hub) handleCommand(c *Client, identity, command string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		h.sendTo(c, errorMessage(msgUnknownCommand))
		return
	}

	switch strings.ToLower(fields[0]) {
	case "join":
		if len(fields) < 2 {
			h.sendTo(c, errorMessage("Uso: join <sala>"))
			return
		}
		h.joinRoom(c, identity, fields[1])

	case "leave":
		h.leaveRoom(c, identity)

	case "list":
		h.listRoom(c)

	default:
		h.sendTo(c, errorMessage(msgUnknownCommand))
	}
}

func (h *Hub) joinRoom(c *Client, identity, room string) {
	h.rooms.Join(c, identity, room)
	h.sendTo(c, systemMessage("Te uniste a la sala '"+room+"'."))

	notice := systemMessage(identity + " se unió a la sala '" + room + "'.")
	for _, member := range h.registry.InRoom(room) {
		if member.Client == c {
			continue
		}
		h.sendTo(member.Client, notice)
	}
}

func (h *Hub) leaveRoom(c *Client, identity string) {
	room := h.rooms.RoomOf(c)
	if room == "" {
		h.sendTo(c, errorMessage("No estás en ninguna sala."))
		return
	}

	h.rooms.Leave(c, identity, true)
	h.sendTo(c, systemMessage("Saliste de la sala '"+room+"'."))
}

func (h *Hub) listRoom(c *Client) {
	room := h.rooms.RoomOf(c)
	if room == "" {
		h.sendTo(c, errorMessage("No estás en ninguna sala."))
		return
	}

	members := h.rooms.MembersOf(room)
	h.sendTo(c, systemMessage("Usuarios en '"+room+"': "+strings.Join(members, ", ")))
}
