package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"socialchat-backend/internal/domain"
)

// KeysRepository stores chat keypairs in CockroachDB
type KeysRepository struct {
	db DBTX
}

// NewKeysRepository creates a new KeysRepository
func NewKeysRepository(db DBTX) *KeysRepository {
	return &KeysRepository{db: db}
}

// GetUserKeys returns both halves of the user's key material, or nil if none exist
func (r *KeysRepository) GetUserKeys(ctx context.Context, userID uuid.UUID) (*domain.UserKeyMaterial, error) {
	query := `
		SELECT user_id, public_key, encrypted_private_key, created_at, updated_at
		FROM user_keys
		WHERE user_id = $1
	`

	keys := &domain.UserKeyMaterial{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&keys.UserID,
		&keys.PublicKey,
		&keys.EncryptedPrivateKey,
		&keys.CreatedAt,
		&keys.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user keys: %w", err)
	}

	return keys, nil
}

// StoreUserKeys writes the public key and wrapped private key in a single statement.
// An existing pair is never overwritten; stored is false when another request won the race.
func (r *KeysRepository) StoreUserKeys(ctx context.Context, keys *domain.UserKeyMaterial) (bool, error) {
	query := `
		INSERT INTO user_keys (user_id, public_key, encrypted_private_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, keys.UserID, keys.PublicKey, keys.EncryptedPrivateKey).
		Scan(&keys.CreatedAt, &keys.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to store user keys: %w", err)
	}

	return true, nil
}

// GetUserPublicKey returns the user's public key PEM, or "" if the user has none
func (r *KeysRepository) GetUserPublicKey(ctx context.Context, userID uuid.UUID) (string, error) {
	query := `SELECT public_key FROM user_keys WHERE user_id = $1`

	var publicKey string
	err := r.db.QueryRow(ctx, query, userID).Scan(&publicKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get public key: %w", err)
	}

	return publicKey, nil
}
