// Package crypto seals mail account app passwords for storage.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidCredential is returned when sealed data is malformed, was sealed with
// another key, or belongs to a different account.
var ErrInvalidCredential = errors.New("invalid sealed credential")

const sealVersion byte = 1

// CredentialCipher seals app passwords with AES-GCM. Each sealed value is bound to
// the account address it was created for, so a row copied onto another account
// fails to open.
//
// Sealed format: [version][nonce][ciphertext+tag]
type CredentialCipher struct {
	aead cipher.AEAD
}

// NewCredentialCipher creates a cipher from a base64-encoded 32-byte key.
func NewCredentialCipher(base64Key string) (*CredentialCipher, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (256 bits), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialCipher{aead: aead}, nil
}

// Seal encrypts the app password of the given account.
func (c *CredentialCipher) Seal(password, accountEmail string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(password)+c.aead.Overhead())
	out = append(out, sealVersion)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, []byte(password), accountBinding(accountEmail)), nil
}

// Open decrypts a password sealed for accountEmail.
func (c *CredentialCipher) Open(sealed []byte, accountEmail string) (string, error) {
	nonceSize := c.aead.NonceSize()
	if len(sealed) < 1+nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrInvalidCredential)
	}
	if sealed[0] != sealVersion {
		return "", fmt.Errorf("%w: unknown version %d", ErrInvalidCredential, sealed[0])
	}

	nonce := sealed[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, sealed[1+nonceSize:], accountBinding(accountEmail))
	if err != nil {
		return "", ErrInvalidCredential
	}

	return string(plaintext), nil
}

// Addresses are case-insensitive, so the binding is too.
func accountBinding(email string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(email)))
}
