// Package server coordinates connection registration, message delivery, and
// disconnect cleanup for the chat gateway via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Hub owns the shared state of the gateway: the connection registry, the
// room directory, the credential gate, and the audit sink. Lifecycle events
// flow through its register/unregister channels; message routing happens on
// the connection goroutines through the dispatch path.
//
// Lock ordering, where locks nest at all: rooms -> hub -> registry. Locks
// are held only for in-memory mutation; network writes happen on the write
// pumps, fed through buffered channels.
type Hub struct {
	registry *Registry
	rooms    *RoomDirectory
	gate     *Gate
	sink     *Sink

	register   chan *Client
	unregister chan *Client

	// mu guards the closed flag of clients during send and teardown.
	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub wired to the given audit sink, using the active
// configuration for the credential gate.
func NewHub(sink *Sink) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		registry:   NewRegistry(),
		sink:       sink,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.rooms = NewRoomDirectory(h.registry)
	h.rooms.onDepart = h.notifyDeparture
	h.gate = NewGate(currentConfig(), h)
	return h
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Rooms returns the hub's room directory.
func (h *Hub) Rooms() *RoomDirectory { return h.rooms }

// Gate returns the hub's credential gate.
func (h *Hub) Gate() *Gate { return h.gate }

// Register queues a connection for registration with the hub. A connection
// arriving after shutdown has begun is closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// Unregister queues a connection for removal and cleanup. After shutdown has
// begun the final sweep handles cleanup, so the call returns immediately.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main event loop, handling connection registration and
// disconnect cleanup. It should be called in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				slog.Warn("nil client registration skipped")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleDisconnect(client)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	c.closed = false
	h.mu.Unlock()

	h.registry.Register(c)
	slog.Info("client registered", "addr", c.addr, "connections", h.registry.Len())

	h.sink.Record(AuditConnect, "", c.addr, c.port, "Nuevo cliente añadido al mapa", "")
	h.sendTo(c, systemMessage(msgWelcome))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// handleDisconnect is the cleanup barrier: it runs exactly once per
// connection, and once it has started, in-flight dispatches for the
// connection become no-ops because the registry entry is gone.
func (h *Hub) handleDisconnect(c *Client) {
	state, known := h.registry.Get(c)
	if !known {
		slog.Debug("duplicate disconnect ignored", "addr", c.addr)
		return
	}

	h.mu.Lock()
	c.closed = true
	h.mu.Unlock()

	if state.Identity != "" {
		h.rooms.CleanupForIdentity(state.Identity)
	} else {
		h.rooms.Remove(c)
	}
	h.registry.Unregister(c)
	close(c.send)

	message := "Socket eliminado del mapa"
	if state.Identity != "" {
		message = "Cliente eliminado del mapa"
	}
	h.sink.Record(AuditDisconnect, state.Identity, c.addr, c.port, message, "")
	slog.Info("client unregistered", "addr", c.addr, "connections", h.registry.Len())
}

// notifyDeparture broadcasts a departure notice to the remaining members of
// a room. Invoked by the room directory before the leaving member is removed.
func (h *Hub) notifyDeparture(room, identity string, leaving *Client) {
	notice := systemMessage(identity + " salió de la sala '" + room + "'.")
	for _, member := range h.registry.InRoom(room) {
		if member.Client == leaving {
			continue
		}
		h.sendTo(member.Client, notice)
	}
}

// sendTo marshals and enqueues a frame for one connection. Returns false if
// the connection is gone or its send buffer is full.
func (h *Hub) sendTo(c *Client, v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal outbound frame", "error", err)
		return false
	}
	return h.safeSend(c, payload)
}

// deliver fans a frame out to the targets, treating any failed enqueue as a
// transport failure: the affected connection is queued for disconnect.
func (h *Hub) deliver(targets []*Client, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal outbound frame", "error", err)
		return
	}

	var failed []*Client
	for _, target := range targets {
		if !h.safeSend(target, payload) {
			failed = append(failed, target)
		}
	}

	for _, target := range failed {
		slog.Warn("dropping connection with full send buffer", "addr", target.addr)
		h.Unregister(target)
	}
}

func (h *Hub) safeSend(c *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("recovered from send on closing connection", "panic", r)
		}
	}()

	// Hold the lock during the enqueue so teardown cannot close the channel
	// mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()

	if c.closed {
		return false
	}
	if _, ok := h.registry.Get(c); !ok {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// shutdownClients runs full disconnect cleanup for every live connection and
// closes its transport. Closing the send channels lets the write pumps drain
// and exit promptly.
func (h *Hub) shutdownClients() {
	clients := h.registry.Connections()

	for _, client := range clients {
		h.handleDisconnect(client)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				slog.Warn("error closing client connection", "addr", client.addr, "error", err)
			}
		}
	}

	slog.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}
