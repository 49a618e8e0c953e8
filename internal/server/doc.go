// Package server implements the real-time messaging gateway of the study
// platform: persistent WebSocket connections, token-based authentication
// with an optional development-mode fallback, room membership, message
// routing (broadcast, room, and direct), and hash-stamped audit records for
// every lifecycle and messaging event.
//
// The implementation is organized into specialized files for the connection
// registry, credential gate, room directory, message routing, audit sink,
// clients, configuration, and HTTP plumbing.
package server
