package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsStatus(t *testing.T) {
	cause := stderrors.New("boom")

	tests := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"validation", ValidationError("bad"), ErrCodeValidation, http.StatusBadRequest},
		{"missing field", MissingFieldError("password"), ErrCodeMissingField, http.StatusBadRequest},
		{"unauthorized", UnauthorizedError("no"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{"invalid token", InvalidTokenError("Invalid or expired token"), ErrCodeInvalidToken, http.StatusUnauthorized},
		{"invalid credential", InvalidCredentialError(cause), ErrCodeInvalidCreds, http.StatusBadRequest},
		{"locked", KeyLockedError(), ErrCodeKeyLocked, http.StatusTooManyRequests},
		{"forbidden", ForbiddenError("no"), ErrCodeForbidden, http.StatusForbidden},
		{"not found", NotFoundError("Public key"), ErrCodeNotFound, http.StatusNotFound},
		{"decryption", DecryptionFailedError(cause), ErrCodeDecryptionFailed, http.StatusInternalServerError},
		{"too large", PayloadTooLargeError(cause), ErrCodePayloadTooLarge, http.StatusBadRequest},
		{"database", DatabaseError(cause), ErrCodeDatabase, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
		})
	}
}

func TestNotFoundError_Message(t *testing.T) {
	assert.Equal(t, "Public key not found", NotFoundError("Public key").Message)
}

func TestGetAppError_Wrapped(t *testing.T) {
	appErr := ForbiddenError("Users must follow each other to chat")
	wrapped := fmt.Errorf("start chat: %w", appErr)

	assert.True(t, IsAppError(wrapped))
	assert.Same(t, appErr, GetAppError(wrapped))
}

func TestGetAppError_PlainErrorBecomesInternal(t *testing.T) {
	cause := stderrors.New("pgx: connection refused")

	appErr := GetAppError(cause)

	assert.Equal(t, ErrCodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	assert.NotContains(t, appErr.Message, "pgx")
	assert.ErrorIs(t, appErr, cause)
}
