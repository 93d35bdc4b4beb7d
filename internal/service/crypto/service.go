package crypto

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"socialchat-backend/internal/domain"
	"socialchat-backend/pkg/audit"
	"socialchat-backend/pkg/e2ee"
	apperrors "socialchat-backend/pkg/errors"
	"socialchat-backend/pkg/logger"
	"socialchat-backend/pkg/metrics"
)

// KeyStore persists user key material
type KeyStore interface {
	GetUserKeys(ctx context.Context, userID uuid.UUID) (*domain.UserKeyMaterial, error)
	StoreUserKeys(ctx context.Context, keys *domain.UserKeyMaterial) (bool, error)
	GetUserPublicKey(ctx context.Context, userID uuid.UUID) (string, error)
}

// Lockout throttles wrong-password attempts per user
type Lockout interface {
	IsLocked(ctx context.Context, userID uuid.UUID) (bool, error)
	RecordFailedAttempt(ctx context.Context, userID uuid.UUID) (bool, error)
	ClearFailedAttempts(ctx context.Context, userID uuid.UUID) error
}

// AuditLogger records key events
type AuditLogger interface {
	LogKeyEvent(ctx context.Context, userID uuid.UUID, eventType audit.AuditEventType, success bool, errorCode string) error
}

// Service issues and recovers chat keypairs.
// It holds no per-user state; everything lives in the KeyStore.
type Service struct {
	keys    KeyStore
	lockout Lockout
	audit   AuditLogger
	kdf     e2ee.KDFParams
}

// NewService creates a new crypto service
func NewService(keys KeyStore, lockout Lockout, auditLogger AuditLogger, kdf e2ee.KDFParams) *Service {
	return &Service{
		keys:    keys,
		lockout: lockout,
		audit:   auditLogger,
		kdf:     kdf,
	}
}

// GenerateKeys returns the user's keypair. An existing pair is recovered with
// password; otherwise a new pair is generated, stored wrapped, and returned once.
func (s *Service) GenerateKeys(ctx context.Context, userID uuid.UUID, password string) (*domain.KeyPairResponse, error) {
	if password == "" {
		return nil, apperrors.MissingFieldError("password")
	}

	existing, err := s.keys.GetUserKeys(ctx, userID)
	if err != nil {
		metrics.KeyGenerationTotal.WithLabelValues("error").Inc()
		return nil, apperrors.DatabaseError(err)
	}
	if existing != nil {
		return s.recover(ctx, existing, password)
	}

	pair, err := e2ee.GenerateKeyPair()
	if err != nil {
		metrics.KeyGenerationTotal.WithLabelValues("error").Inc()
		return nil, apperrors.WrapWithStatus(apperrors.ErrCodeInternal, "Failed to generate keys", http.StatusInternalServerError, err)
	}

	wrapped, err := e2ee.WrapPrivateKey(pair.PrivateKey, password, s.kdf)
	if err != nil {
		metrics.KeyGenerationTotal.WithLabelValues("error").Inc()
		return nil, apperrors.WrapWithStatus(apperrors.ErrCodeInternal, "Failed to generate keys", http.StatusInternalServerError, err)
	}

	material := &domain.UserKeyMaterial{
		UserID:              userID,
		PublicKey:           pair.PublicKey,
		EncryptedPrivateKey: wrapped,
	}
	stored, err := s.keys.StoreUserKeys(ctx, material)
	if err != nil {
		metrics.KeyGenerationTotal.WithLabelValues("error").Inc()
		return nil, apperrors.DatabaseError(err)
	}
	if !stored {
		// A concurrent request created the pair first; ours is discarded.
		existing, err = s.keys.GetUserKeys(ctx, userID)
		if err != nil || existing == nil {
			metrics.KeyGenerationTotal.WithLabelValues("error").Inc()
			return nil, apperrors.DatabaseError(err)
		}
		return s.recover(ctx, existing, password)
	}

	s.logAudit(ctx, userID, audit.EventKeyGenerate, true, "")
	metrics.KeyGenerationTotal.WithLabelValues("generated").Inc()
	logger.FromContext(ctx).Info("Generated chat keypair", zap.Stringer("user_id", userID))

	return &domain.KeyPairResponse{
		PublicKey:  pair.PublicKey,
		PrivateKey: pair.PrivateKey,
	}, nil
}

// UnlockPrivateKey unwraps the stored private key with password
func (s *Service) UnlockPrivateKey(ctx context.Context, userID uuid.UUID, password string) (string, error) {
	if password == "" {
		return "", apperrors.MissingFieldError("password")
	}

	existing, err := s.keys.GetUserKeys(ctx, userID)
	if err != nil {
		return "", apperrors.DatabaseError(err)
	}
	if existing == nil {
		return "", apperrors.NotFoundError("Key pair")
	}

	pair, err := s.recover(ctx, existing, password)
	if err != nil {
		return "", err
	}
	return pair.PrivateKey, nil
}

// GetPublicKey returns a user's public key for anyone authenticated
func (s *Service) GetPublicKey(ctx context.Context, userID uuid.UUID) (*domain.PublicKeyResponse, error) {
	publicKey, err := s.keys.GetUserPublicKey(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if publicKey == "" {
		return nil, apperrors.NotFoundError("Public key")
	}

	return &domain.PublicKeyResponse{UserID: userID, PublicKey: publicKey}, nil
}

func (s *Service) recover(ctx context.Context, material *domain.UserKeyMaterial, password string) (*domain.KeyPairResponse, error) {
	log := logger.FromContext(ctx)

	locked, err := s.lockout.IsLocked(ctx, material.UserID)
	if err != nil {
		// Fail open: a Redis outage must not lock every user out of their keys
		log.Warn("Failed to check key lockout", zap.Error(err))
	}
	if locked {
		metrics.KeyGenerationTotal.WithLabelValues("locked").Inc()
		return nil, apperrors.KeyLockedError()
	}

	privateKey, err := e2ee.UnwrapPrivateKey(material.EncryptedPrivateKey, password)
	if err != nil {
		if !errors.Is(err, e2ee.ErrInvalidCredential) {
			metrics.KeyGenerationTotal.WithLabelValues("error").Inc()
			return nil, apperrors.WrapWithStatus(apperrors.ErrCodeInternal, "Stored key material is unreadable", http.StatusInternalServerError, err)
		}

		metrics.KeyGenerationTotal.WithLabelValues("invalid_password").Inc()
		nowLocked, lockErr := s.lockout.RecordFailedAttempt(ctx, material.UserID)
		if lockErr != nil {
			log.Warn("Failed to record key unlock attempt", zap.Error(lockErr))
		}
		s.logAudit(ctx, material.UserID, audit.EventKeyRecover, false, string(apperrors.ErrCodeInvalidCreds))
		if nowLocked {
			s.logAudit(ctx, material.UserID, audit.EventKeyLocked, false, string(apperrors.ErrCodeKeyLocked))
		}
		return nil, apperrors.InvalidCredentialError(err)
	}

	if err := s.lockout.ClearFailedAttempts(ctx, material.UserID); err != nil {
		log.Warn("Failed to clear key unlock attempts", zap.Error(err))
	}
	s.logAudit(ctx, material.UserID, audit.EventKeyRecover, true, "")
	metrics.KeyGenerationTotal.WithLabelValues("recovered").Inc()

	return &domain.KeyPairResponse{
		PublicKey:  material.PublicKey,
		PrivateKey: privateKey,
	}, nil
}

func (s *Service) logAudit(ctx context.Context, userID uuid.UUID, eventType audit.AuditEventType, success bool, code string) {
	if err := s.audit.LogKeyEvent(ctx, userID, eventType, success, code); err != nil {
		logger.FromContext(ctx).Warn("Failed to write audit event",
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
