// Package crypto seals secret setting values before they reach the
// metadata store. The compliance client secret is the only value stored
// encrypted today; the encryptor does not care which key it protects.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when the encryption key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned when a stored value cannot be opened,
	// either because it was corrupted or because SETTINGS_KEY changed.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// CredentialEncryptor applies AES-256-GCM to setting values. GCM
// authenticates the ciphertext, so a wrong key surfaces as
// ErrDecryptionFailed instead of garbage plaintext.
type CredentialEncryptor struct {
	gcm cipher.AEAD
}

// NewCredentialEncryptor builds an encryptor from the SETTINGS_KEY value.
// A base64-encoded 32-byte key (openssl rand -base64 32) is used directly;
// anything else is treated as a passphrase and hashed to 32 bytes.
func NewCredentialEncryptor(keyInput string) (*CredentialEncryptor, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(deriveKey(keyInput))
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{gcm: gcm}, nil
}

func deriveKey(input string) []byte {
	decoded, err := base64.StdEncoding.DecodeString(input)
	if err == nil && len(decoded) == 32 {
		return decoded
	}
	hash := sha256.Sum256([]byte(input))
	return hash[:]
}

// Encrypt seals plaintext as base64(nonce || ciphertext || tag). An empty
// value passes through unchanged so unset settings stay recognizably unset.
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext and tag after the nonce.
	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Empty values pass through.
func (e *CredentialEncryptor) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize+e.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}

	return string(plaintext), nil
}
