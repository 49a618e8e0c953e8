// Package server declares the sentinel errors of the messaging core. All of
// them are per-connection conditions: they are reported to the offending
// client or turned into a disconnect, never allowed to take down the process.
package server

import "errors"

var (
	// ErrInvalidCredential marks a rejected token, username or password. It is
	// deliberately shared by every credential path so callers cannot tell which
	// field was wrong.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrNotRegistered marks an operation on a connection the registry does
	// not know about.
	ErrNotRegistered = errors.New("connection not registered")
)

// Client-facing reply bodies. The deployed frontend is Spanish-language, so
// the protocol level strings are too.
const (
	msgWelcome          = "Bienvenido. Debes autenticarte para chatear."
	msgAuthRequired     = "Se requiere token JWT"
	msgMustAuthenticate = "Debes autenticarte primero."
	msgUnknownType      = "Tipo de mensaje desconocido"
	msgMalformed        = "Mensaje inválido"
)
