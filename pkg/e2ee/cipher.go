package e2ee

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrPayloadTooLarge is returned when a plaintext does not fit a single RSA-OAEP block
	ErrPayloadTooLarge = errors.New("e2ee: payload too large")
	// ErrDecryptionFailed is returned for corrupt ciphertext, a wrong key or failed padding checks
	ErrDecryptionFailed = errors.New("e2ee: decryption failed")
)

// MaxPlaintextSize returns the largest plaintext RSA-OAEP-SHA256 accepts for the key
func MaxPlaintextSize(key *rsa.PublicKey) int {
	return key.Size() - 2*sha256.Size - 2
}

// EncryptMessage encrypts plaintext for the holder of publicKeyPEM.
// Output is base64 (std) RSA-OAEP-SHA256 ciphertext.
func EncryptMessage(plaintext string, publicKeyPEM string) (string, error) {
	publicKey, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", err
	}

	if len(plaintext) > MaxPlaintextSize(publicKey) {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(plaintext), MaxPlaintextSize(publicKey))
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptMessage reverses EncryptMessage
func DecryptMessage(ciphertext string, privateKeyPEM string) (string, error) {
	privateKey, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, privateKey, raw, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}
