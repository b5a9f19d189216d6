// Package sealed holds the key management and envelope crypto for shared
// bills: ed25519 signing key pairs (one per shared bill, plus one per-device
// communication pair) and secretbox symmetric keys for share payloads.
package sealed

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
)

// GenerateSigningKeyPair returns a fresh ed25519 pair in transportable form.
// Used both for per-bill signing keys and the device communication pair.
func GenerateSigningKeyPair() (model.KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return model.KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return model.KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
	}, nil
}

// Sign marshals content to JSON and signs it with the base64-encoded private
// key. Both ends marshal the same fixed struct, so the bytes match.
func Sign(content any, privateKey string) (string, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}
	priv, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("private key has %d bytes, want %d", len(priv), ed25519.PrivateKeySize)
	}
	sig := ed25519.Sign(ed25519.PrivateKey(priv), raw)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signature matches content under the base64-encoded
// public key. Any decode failure counts as verification failure.
func Verify(content any, signature, publicKey string) bool {
	raw, err := json.Marshal(content)
	if err != nil {
		return false
	}
	pub, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), raw, sig)
}

// ExportKey serializes a key pair to a JSON blob suitable for snapshots and
// QR transport.
func ExportKey(kp model.KeyPair) ([]byte, error) {
	return json.Marshal(kp)
}

// ImportKey parses a key pair previously produced by ExportKey and checks
// the key sizes.
func ImportKey(data []byte) (model.KeyPair, error) {
	var kp model.KeyPair
	if err := json.Unmarshal(data, &kp); err != nil {
		return model.KeyPair{}, fmt.Errorf("parse key pair: %w", err)
	}
	pub, err := base64.StdEncoding.DecodeString(kp.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return model.KeyPair{}, fmt.Errorf("key pair has invalid public key: %w", model.ErrValidation)
	}
	if kp.PrivateKey != "" {
		priv, err := base64.StdEncoding.DecodeString(kp.PrivateKey)
		if err != nil || len(priv) != ed25519.PrivateKeySize {
			return model.KeyPair{}, fmt.Errorf("key pair has invalid private key: %w", model.ErrValidation)
		}
	}
	return kp, nil
}
