package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateIssuesVerifiableToken(t *testing.T) {
	hub, _ := newTestHub(t, false)
	gate := hub.Gate()

	token, err := gate.Authenticate("test", "test")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	user, err := gate.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "test", user)
}

func TestAuthenticateRejectsWithoutRevealingField(t *testing.T) {
	hub, _ := newTestHub(t, false)
	gate := hub.Gate()

	_, badPassword := gate.Authenticate("test", "wrong")
	_, badUser := gate.Authenticate("nobody", "test")

	assert.ErrorIs(t, badPassword, ErrInvalidCredential)
	assert.ErrorIs(t, badUser, ErrInvalidCredential)
	assert.Equal(t, badPassword.Error(), badUser.Error())
}

func TestVerifyTokenRejectsForeignSignature(t *testing.T) {
	hub, _ := newTestHub(t, false)
	foreign := NewGate(Config{
		Auth:     AuthConfig{JWTSecret: "other-secret", TokenTTL: currentConfig().Auth.TokenTTL},
		Accounts: testAccounts(),
	}, hub)

	token, err := foreign.SignToken("test")
	require.NoError(t, err)

	_, err = hub.Gate().VerifyToken(token)
	assert.Error(t, err)
}

func TestProcessAuthMessageTokenBranch(t *testing.T) {
	hub, mem := newTestHub(t, false)
	c := newTestClient()
	hub.Registry().Register(c)

	token, err := hub.Gate().SignToken("ana")
	require.NoError(t, err)

	hub.Gate().ProcessAuthMessage(c, Envelope{Type: TypeAuth, Token: token})

	frame := recvFrame(t, c)
	assert.Equal(t, TypeSystem, frame.Type)
	assert.Contains(t, frame.Body, "Autenticado como ana")

	state, _ := hub.Registry().Get(c)
	assert.Equal(t, "ana", state.Identity)

	waitFor(t, func() bool { return len(mem.byKind(AuditAuth)) == 1 }, "expected one AUTH audit record")
}

func TestProcessAuthMessageInvalidTokenIsNotFatal(t *testing.T) {
	hub, mem := newTestHub(t, false)
	c := newTestClient()
	hub.Registry().Register(c)

	hub.Gate().ProcessAuthMessage(c, Envelope{Type: TypeAuth, Token: "garbage"})

	frame := recvFrame(t, c)
	assert.Equal(t, TypeError, frame.Type)
	assert.Contains(t, frame.Body, "JWT inválido")

	state, ok := hub.Registry().Get(c)
	require.True(t, ok, "connection must survive a bad token")
	assert.Empty(t, state.Identity)

	waitFor(t, func() bool { return len(mem.byKind(AuditError)) == 1 }, "expected one ERROR audit record")
}

func TestProcessAuthMessageDevModeKnownUser(t *testing.T) {
	hub, mem := newTestHub(t, true)
	c := newTestClient()
	hub.Registry().Register(c)

	hub.Gate().ProcessAuthMessage(c, Envelope{Type: TypeAuth, User: "test"})

	frame := recvFrame(t, c)
	assert.Equal(t, TypeSystem, frame.Type)
	assert.Contains(t, frame.Body, "test")
	assert.Contains(t, frame.Body, "DEV modo")

	state, _ := hub.Registry().Get(c)
	assert.Equal(t, "test", state.Identity)

	waitFor(t, func() bool { return len(mem.byKind(AuditAuth)) == 1 }, "expected one AUTH audit record")
}

func TestProcessAuthMessageDevModeUnknownUserListsAccounts(t *testing.T) {
	hub, _ := newTestHub(t, true)
	c := newTestClient()
	hub.Registry().Register(c)

	hub.Gate().ProcessAuthMessage(c, Envelope{Type: TypeAuth, User: "ghost"})

	frame := recvFrame(t, c)
	assert.Equal(t, TypeError, frame.Type)
	assert.Contains(t, frame.Body, "ghost no existe")
	assert.Contains(t, frame.Body, "test")
	assert.Contains(t, frame.Body, "ana")

	state, _ := hub.Registry().Get(c)
	assert.Empty(t, state.Identity, "unknown dev user must stay unauthenticated")
}

func TestProcessAuthMessageDevBranchDisabledByDefault(t *testing.T) {
	hub, mem := newTestHub(t, false)
	c := newTestClient()
	hub.Registry().Register(c)

	hub.Gate().ProcessAuthMessage(c, Envelope{Type: TypeAuth, User: "test"})

	frame := recvFrame(t, c)
	assert.Equal(t, TypeError, frame.Type)
	assert.Equal(t, msgAuthRequired, frame.Body)

	state, _ := hub.Registry().Get(c)
	assert.Empty(t, state.Identity)
	assert.Empty(t, mem.byKind(AuditAuth))
}

func TestProcessAuthMessageWithoutTokenOrUser(t *testing.T) {
	hub, _ := newTestHub(t, true)
	c := newTestClient()
	hub.Registry().Register(c)

	hub.Gate().ProcessAuthMessage(c, Envelope{Type: TypeAuth})

	frame := recvFrame(t, c)
	assert.Equal(t, TypeError, frame.Type)
	assert.Equal(t, msgAuthRequired, frame.Body)
}

func TestIdentityIsImmutableAfterFirstAuth(t *testing.T) {
	hub, _ := newTestHub(t, true)
	c := newTestClient()
	hub.Registry().Register(c)

	hub.Gate().ProcessAuthMessage(c, Envelope{Type: TypeAuth, User: "test"})
	recvFrame(t, c)

	hub.Gate().ProcessAuthMessage(c, Envelope{Type: TypeAuth, User: "ana"})
	frame := recvFrame(t, c)
	assert.Equal(t, TypeSystem, frame.Type)
	assert.Contains(t, frame.Body, "Ya autenticado como test")

	state, _ := hub.Registry().Get(c)
	assert.Equal(t, "test", state.Identity, "first successful auth wins")
}
