package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserKeyMaterial is a user's chat keypair as stored on the server
// Maps to CockroachDB user_keys table
// PublicKey and EncryptedPrivateKey are always written together
type UserKeyMaterial struct {
	UserID              uuid.UUID `json:"user_id" db:"user_id"`
	PublicKey           string    `json:"public_key" db:"public_key"`                       // PKIX PEM
	EncryptedPrivateKey string    `json:"-" db:"encrypted_private_key"`                     // argon2id + AES-GCM record, carries its own salt
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// KeyPairResponse is returned once to the caller of POST /v1/chat/keys
type KeyPairResponse struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// PublicKeyResponse is returned by GET /v1/chat/keys/:user_id
type PublicKeyResponse struct {
	UserID    uuid.UUID `json:"userId"`
	PublicKey string    `json:"publicKey"`
}
