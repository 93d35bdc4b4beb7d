package e2ee

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// KeyBits is the RSA modulus size issued to every user
const KeyBits = 2048

var (
	// ErrInvalidKey is returned when a PEM block cannot be parsed as the expected key type
	ErrInvalidKey = errors.New("e2ee: invalid key")
	// ErrWeakKey is returned when a key is smaller than KeyBits
	ErrWeakKey = errors.New("e2ee: key size below 2048 bits")
)

// KeyPair holds a PEM-encoded RSA keypair
// PublicKey is PKIX ("PUBLIC KEY"), PrivateKey is PKCS#8 ("PRIVATE KEY")
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair creates a new RSA keypair of KeyBits
func GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPair(KeyBits)
}

func generateKeyPair(bits int) (*KeyPair, error) {
	if bits < KeyBits {
		return nil, ErrWeakKey
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rsa key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	privateDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return &KeyPair{
		PublicKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})),
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER})),
	}, nil
}

// ParsePublicKey decodes a PKIX PEM public key
func ParsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, ErrInvalidKey
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	if rsaKey.N.BitLen() < KeyBits {
		return nil, ErrWeakKey
	}

	return rsaKey, nil
}

// ParsePrivateKey decodes a PKCS#8 PEM private key
func ParsePrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, ErrInvalidKey
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidKey
	}

	return rsaKey, nil
}
