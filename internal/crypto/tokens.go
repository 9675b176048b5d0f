package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrCiphertextTooShort is returned when a sealed value is shorter than a nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// TokenCipher seals OAuth tokens with AES-256-GCM before they are written to
// the users table. Sealed values are laid out as [nonce][ciphertext+tag].
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher builds a cipher from a base64-encoded 32-byte key.
func NewTokenCipher(base64Key string) (*TokenCipher, error) {
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

	return &TokenCipher{aead: aead}, nil
}

// Seal encrypts a token with a fresh random nonce.
func (c *TokenCipher) Seal(token string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, []byte(token), nil), nil
}

// Open decrypts a value produced by Seal. It fails if the value was sealed
// under another key or has been tampered with.
func (c *TokenCipher) Open(sealed []byte) (string, error) {
	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// SealOptional seals a token, mapping the empty string to nil so that a
// missing refresh token is stored as NULL.
func (c *TokenCipher) SealOptional(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	return c.Seal(token)
}

// OpenOptional is the inverse of SealOptional.
func (c *TokenCipher) OpenOptional(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	return c.Open(sealed)
}
