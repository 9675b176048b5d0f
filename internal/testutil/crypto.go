package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/corkcrm/michael-mail-2/internal/crypto"
)

// TestEncryptionKey is the base64 form of the deterministic key bytes 0..31.
var TestEncryptionKey = func() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}()

// NewTestCipher returns a token cipher over TestEncryptionKey.
func NewTestCipher(t *testing.T) *crypto.TokenCipher {
	t.Helper()

	c, err := crypto.NewTokenCipher(TestEncryptionKey)
	if err != nil {
		t.Fatalf("Failed to create token cipher: %v", err)
	}
	return c
}
