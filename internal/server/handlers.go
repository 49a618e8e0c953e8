// Package server exposes HTTP handlers: the WebSocket upgrade endpoint, the
// login endpoint, and the health check.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// NewWebSocketHandler upgrades requests and hands the connection to the hub,
// which launches the client's pumps.
func NewWebSocketHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "error", err)
			return
		}

		client := NewClient(conn, h, r.RemoteAddr)
		h.Register(client)
	}
}

// LoginRequest is the body of POST /login. With Encrypted set, both fields
// carry AES ciphertext from the frontend.
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Encrypted bool   `json:"encrypted,omitempty"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token string `json:"token"`
}

// NewLoginHandler validates credentials against the configured account list
// and issues a signed token. The response never reveals which field was
// wrong, nor whether decryption or the credential check failed.
func NewLoginHandler(gate *Gate, cipher *Cipher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Cuerpo de la solicitud inválido"})
			return
		}

		username, password := req.Username, req.Password
		if req.Encrypted {
			username = cipher.Decrypt(req.Username)
			password = cipher.Decrypt(req.Password)
		}

		token, err := gate.Authenticate(username, password)
		if err != nil {
			if !errors.Is(err, ErrInvalidCredential) {
				slog.Error("token issuance failed", "error", err)
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Credenciales inválidas"})
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{Token: token})
	}
}

// NewHealthHandler reports gateway status including live connection and
// goroutine counts.
func NewHealthHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "OK",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"connections": h.registry.Len(),
			"goroutines":  runtime.NumGoroutine(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("error writing JSON response", "error", err)
	}
}
