package e2ee

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	wrapVersion = "v1"
	wrapKDF     = "argon2id"
	saltSize    = 16
	wrapKeySize = 32
)

var (
	// ErrInvalidCredential is returned when a wrapped key does not open with the given password
	ErrInvalidCredential = errors.New("e2ee: invalid credential")
	// ErrMalformedWrappedKey is returned when a wrapped key record cannot be parsed
	ErrMalformedWrappedKey = errors.New("e2ee: malformed wrapped key")
)

// KDFParams are the argon2id cost parameters used to derive the wrapping key
type KDFParams struct {
	MemoryKiB  uint32
	Iterations uint32
	Threads    uint8
}

// DefaultKDFParams returns the recommended argon2id settings
func DefaultKDFParams() KDFParams {
	return KDFParams{
		MemoryKiB:  64 * 1024,
		Iterations: 1,
		Threads:    4,
	}
}

// Upper bounds on the cost of a single unwrap. Stored records are read back
// from the database, so their parameters are not trusted beyond these.
const (
	MaxKDFMemoryKiB  = 1024 * 1024
	MaxKDFIterations = 16
	MaxKDFThreads    = 16
)

func (p KDFParams) valid() bool {
	return p.Threads > 0 && p.Threads <= MaxKDFThreads &&
		p.Iterations > 0 && p.Iterations <= MaxKDFIterations &&
		p.MemoryKiB >= 8*uint32(p.Threads) && p.MemoryKiB <= MaxKDFMemoryKiB
}

// WrapPrivateKey encrypts privateKeyPEM under a key derived from password.
// Every call uses a fresh salt and nonce, both stored in the returned record:
//
//	v1$argon2id$m=<KiB>,t=<iterations>,p=<threads>$<salt>$<nonce>$<ciphertext>
func WrapPrivateKey(privateKeyPEM, password string, params KDFParams) (string, error) {
	if !params.valid() {
		return "", fmt.Errorf("e2ee: invalid kdf params %+v", params)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read salt: %w", err)
	}

	aead, err := newWrapAEAD(password, salt, params)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(privateKeyPEM), []byte(wrapVersion))

	enc := base64.RawStdEncoding
	return strings.Join([]string{
		wrapVersion,
		wrapKDF,
		fmt.Sprintf("m=%d,t=%d,p=%d", params.MemoryKiB, params.Iterations, params.Threads),
		enc.EncodeToString(salt),
		enc.EncodeToString(nonce),
		enc.EncodeToString(sealed),
	}, "$"), nil
}

// UnwrapPrivateKey opens a record produced by WrapPrivateKey
func UnwrapPrivateKey(wrapped, password string) (string, error) {
	parts := strings.Split(wrapped, "$")
	if len(parts) != 6 || parts[0] != wrapVersion || parts[1] != wrapKDF {
		return "", ErrMalformedWrappedKey
	}

	var params KDFParams
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Iterations, &params.Threads); err != nil || !params.valid() {
		return "", ErrMalformedWrappedKey
	}

	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[3])
	if err != nil || len(salt) != saltSize {
		return "", ErrMalformedWrappedKey
	}
	nonce, err := enc.DecodeString(parts[4])
	if err != nil {
		return "", ErrMalformedWrappedKey
	}
	sealed, err := enc.DecodeString(parts[5])
	if err != nil {
		return "", ErrMalformedWrappedKey
	}

	aead, err := newWrapAEAD(password, salt, params)
	if err != nil {
		return "", err
	}
	if len(nonce) != aead.NonceSize() {
		return "", ErrMalformedWrappedKey
	}

	plaintext, err := aead.Open(nil, nonce, sealed, []byte(wrapVersion))
	if err != nil {
		return "", ErrInvalidCredential
	}

	return string(plaintext), nil
}

func newWrapAEAD(password string, salt []byte, params KDFParams) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.MemoryKiB, params.Threads, wrapKeySize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	return aead, nil
}
