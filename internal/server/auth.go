// Package server binds identities to connections through the Gate type. A
// connection moves from unauthenticated to authenticated exactly once, via a
// signed token or, when explicitly enabled, the insecure development-mode
// username path.
package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// insecureDefaultSecret keeps a misconfigured gateway running in development.
// Startup logs a warning whenever it is in effect.
const insecureDefaultSecret = "river_plate"

type account struct {
	username     string
	passwordHash []byte
	displayName  string
}

type tokenClaims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

// Gate validates auth claims and binds identities. The signing secret and
// token lifetime are fixed at construction and read-only thereafter.
type Gate struct {
	hub       *Hub
	secret    []byte
	ttl       time.Duration
	devMode   bool
	accounts  []account
	usernames []string
}

// NewGate builds the gate from the given configuration. Configured passwords
// are bcrypt-hashed immediately; the plaintext is not retained.
func NewGate(cfg Config, hub *Hub) *Gate {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = insecureDefaultSecret
		slog.Warn("JWT_SECRET not configured, using insecure default")
	}

	g := &Gate{
		hub:     hub,
		secret:  []byte(secret),
		ttl:     cfg.Auth.TokenTTL,
		devMode: cfg.Auth.DevMode,
	}

	for _, cred := range cfg.Accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(cred.Password), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("skipping account with unhashable password", "user", cred.Username, "error", err)
			continue
		}
		g.accounts = append(g.accounts, account{
			username:     cred.Username,
			passwordHash: hash,
			displayName:  cred.DisplayName,
		})
		g.usernames = append(g.usernames, cred.Username)
	}

	if g.devMode {
		slog.Warn("development-mode authentication enabled, placeholder usernames bypass password checks")
	}

	return g
}

// Authenticate checks the username and password against the configured
// account list and issues a signed token on match. The returned error never
// reveals which of the two fields was wrong.
func (g *Gate) Authenticate(username, password string) (string, error) {
	for _, acct := range g.accounts {
		if acct.username != username {
			continue
		}
		if bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) != nil {
			break
		}
		return g.SignToken(username)
	}
	return "", ErrInvalidCredential
}

// SignToken issues an HS256 token bound to the identity, expiring after the
// configured lifetime.
func (g *Gate) SignToken(user string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// VerifyToken validates the token signature and expiry and returns the
// embedded identity.
func (g *Gate) VerifyToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method", ErrInvalidCredential)
		}
		return g.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid || claims.User == "" {
		return "", ErrInvalidCredential
	}
	return claims.User, nil
}

// ProcessAuthMessage handles an inbound auth frame. Verification failures are
// reported to the client and audited; they are never fatal to the connection.
func (g *Gate) ProcessAuthMessage(c *Client, env Envelope) {
	state, ok := g.hub.registry.Get(c)
	if !ok {
		return
	}

	// First successful auth wins; the identity of a connection is immutable.
	if state.Identity != "" {
		g.hub.sendTo(c, systemMessage("Ya autenticado como "+state.Identity))
		return
	}

	if env.Token != "" {
		g.authenticateWithToken(c, env.Token)
		return
	}

	if env.User != "" && g.devMode {
		g.authenticateDevMode(c, env.User)
		return
	}

	g.hub.sendTo(c, errorMessage(msgAuthRequired))
}

func (g *Gate) authenticateWithToken(c *Client, token string) {
	user, err := g.VerifyToken(token)
	if err != nil {
		body := "JWT inválido: " + err.Error()
		g.hub.sendTo(c, errorMessage(body))
		g.hub.sink.Record(AuditError, "", c.addr, c.port, body, "")
		return
	}

	g.hub.registry.SetIdentity(c, user)
	g.hub.sendTo(c, systemMessage("Autenticado como "+user))
	g.hub.sink.Record(AuditAuth, user, c.addr, c.port, "Autenticación JWT exitosa", "")
}

func (g *Gate) authenticateDevMode(c *Client, user string) {
	if !g.hasAccount(user) {
		body := fmt.Sprintf("Usuario %s no existe. Usuarios disponibles: %s",
			user, strings.Join(g.usernames, ", "))
		g.hub.sendTo(c, errorMessage(body))
		return
	}

	g.hub.registry.SetIdentity(c, user)
	g.hub.sendTo(c, systemMessage(fmt.Sprintf("Autenticado como %s (DEV modo)", user)))
	g.hub.sink.Record(AuditAuth, user, c.addr, c.port, "Autenticación DEV exitosa", "")
}

func (g *Gate) hasAccount(username string) bool {
	for _, acct := range g.accounts {
		if acct.username == username {
			return true
		}
	}
	return false
}
