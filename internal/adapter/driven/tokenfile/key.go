package tokenfile

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// MinSecretLength is the shortest configured secret DeriveKey accepts.
const MinSecretLength = 16

const (
	keySalt = "insightpanel-token-store-salt-v1"
	keyInfo = "insightpanel-token-store-aes256gcm-v1"
)

// ErrSecretTooShort is returned by DeriveKey for secrets under MinSecretLength bytes.
var ErrSecretTooShort = errors.New("secret too short")

// DeriveKey derives the store's AES-256 key from the configured secret with
// HKDF-SHA256. The derivation is deterministic so existing containers stay
// readable across restarts.
func DeriveKey(secret string) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrSecretTooShort, MinSecretLength, len(secret))
	}

	r := hkdf.New(sha256.New, []byte(secret), []byte(keySalt), []byte(keyInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive hkdf-sha256 key: %w", err)
	}
	return key, nil
}
