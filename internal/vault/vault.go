// Package vault provides the symmetric encryption primitive the policy layer
// uses to seal credential fields before they reach the document store.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Encrypter is the one-way port consumed by the encryption wrappers. The
// policy layer never decrypts; decryption belongs to the components that hand
// credentials to upstream services.
type Encrypter interface {
	EncryptAndEncode(ctx context.Context, plaintext string) (string, error)
}

// AESGCM seals values with AES-256-GCM under a key derived from the
// deployment master key, and encodes the nonce-prefixed ciphertext as base64.
type AESGCM struct {
	key [32]byte
}

func New(masterKey string) *AESGCM {
	return &AESGCM{key: sha256.Sum256([]byte(masterKey))}
}

func (a *AESGCM) EncryptAndEncode(_ context.Context, plaintext string) (string, error) {
	block, err := aes.NewCipher(a.key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
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

// DecodeAndDecrypt reverses EncryptAndEncode. Not part of the Encrypter port;
// only operational tooling outside the policy layer needs it.
func (a *AESGCM) DecodeAndDecrypt(_ context.Context, encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(a.key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed (wrong key or tampered data)")
	}
	return string(plain), nil
}
