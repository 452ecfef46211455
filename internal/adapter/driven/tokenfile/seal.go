package tokenfile

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

// container is the on-disk JSON envelope. All three fields are hex encoded.
type container struct {
	Nonce      string `json:"nonce"`
	Tag        string `json:"tag"`
	Ciphertext string `json:"ciphertext"`
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// seal encrypts plaintext under key with AES-256-GCM and a fresh random
// nonce. A nonce must never repeat under the same key, so one is drawn per call.
func seal(key, plaintext []byte) (container, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return container{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return container{}, fmt.Errorf("rand nonce: %w", err)
	}

	// Seal produces ciphertext || tag; the container stores them apart.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - gcm.Overhead()

	return container{
		Nonce:      hex.EncodeToString(nonce),
		Tag:        hex.EncodeToString(sealed[split:]),
		Ciphertext: hex.EncodeToString(sealed[:split]),
	}, nil
}

// open authenticates and decrypts c. Every failure wraps driven.ErrIntegrity
// except a bad key, which is a programming error.
func open(key []byte, c container) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := hex.DecodeString(c.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: decode nonce: %v", driven.ErrIntegrity, err)
	}
	tag, err := hex.DecodeString(c.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: decode tag: %v", driven.ErrIntegrity, err)
	}
	ciphertext, err := hex.DecodeString(c.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", driven.ErrIntegrity, err)
	}

	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", driven.ErrIntegrity, gcm.NonceSize(), len(nonce))
	}
	if len(tag) != gcm.Overhead() {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", driven.ErrIntegrity, gcm.Overhead(), len(tag))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driven.ErrIntegrity, err)
	}
	return plaintext, nil
}
