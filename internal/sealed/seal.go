package sealed

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// GenerateShareKey returns a fresh base64-encoded symmetric key for one
// shared bill. The key travels in the share link or QR code, never through
// the relay.
func GenerateShareKey() (string, error) {
	var key [keySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", fmt.Errorf("generate share key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// Seal encrypts plaintext under the base64-encoded symmetric key and returns
// base64 ciphertext with the random nonce prepended.
func Seal(plaintext []byte, shareKey string) (string, error) {
	key, err := decodeKey(shareKey)
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenSealed reverses Seal. Authentication failure (wrong key, tampered
// ciphertext) returns an error and no plaintext.
func OpenSealed(ciphertext, shareKey string) ([]byte, error) {
	key, err := decodeKey(shareKey)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("ciphertext authentication failed")
	}
	return plain, nil
}

func decodeKey(shareKey string) ([keySize]byte, error) {
	var key [keySize]byte
	raw, err := base64.StdEncoding.DecodeString(shareKey)
	if err != nil {
		return key, fmt.Errorf("decode share key: %w", err)
	}
	if len(raw) != keySize {
		return key, fmt.Errorf("share key has %d bytes, want %d", len(raw), keySize)
	}
	copy(key[:], raw)
	return key, nil
}
