package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/vdavid/cqmail/internal/crypto"
)

// GetTestCipher creates a credential cipher with a deterministic key.
func GetTestCipher(t *testing.T) *crypto.CredentialCipher {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	c, err := crypto.NewCredentialCipher(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("Failed to create credential cipher: %v", err)
	}
	return c
}
