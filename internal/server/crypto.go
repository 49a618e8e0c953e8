// Package server implements the symmetric login-credential cipher. The chat
// core treats it as an opaque decrypt capability: ciphertext in, plaintext or
// nothing out.
package server

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2 parameters for deriving the AES-256 key from the shared secret.
// The salt is fixed because both ends derive the same key from the same
// configured secret; the secret itself is the credential.
const (
	keyIterations = 4096
	keyLength     = 32
)

var keySalt = []byte("plataforma-estudio-login")

// Cipher encrypts and decrypts login credentials with AES-256-GCM.
type Cipher struct {
	key []byte
}

// NewCipher derives the AES key from the configured secret.
func NewCipher(secret string) *Cipher {
	return &Cipher{
		key: pbkdf2.Key([]byte(secret), keySalt, keyIterations, keyLength, sha256.New),
	}
}

// Encrypt seals the plaintext and returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	gcm, err := c.newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64(nonce || ciphertext) and returns the plaintext, or ""
// for any malformed, truncated, or unauthenticated input. It never reports
// why decryption failed.
func (c *Cipher) Decrypt(cipherText string) string {
	if cipherText == "" {
		return ""
	}

	raw, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return ""
	}

	gcm, err := c.newGCM()
	if err != nil {
		return ""
	}

	if len(raw) < gcm.NonceSize() {
		return ""
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ""
	}
	return string(plaintext)
}

func (c *Cipher) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
