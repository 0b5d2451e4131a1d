package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/invigilo-backend/internal/config"
)

func newTestTokenService(ttl time.Duration) *TokenService {
	return NewTokenService(&config.Config{
		JWTSecret:       "test-secret",
		AttemptTokenTTL: ttl,
	})
}

func TestMintAndValidateAttemptToken(t *testing.T) {
	svc := newTestTokenService(time.Hour)
	attemptID := uuid.New()
	examID := uuid.New()

	token, err := svc.MintAttemptToken(attemptID, examID, "Ada", "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, attemptID, claims.AttemptID)
	assert.Equal(t, examID, claims.ExamID)
	assert.Equal(t, "Ada", claims.StudentName)
	assert.Equal(t, "ada@example.com", claims.StudentEmail)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := newTestTokenService(time.Hour).
		MintAttemptToken(uuid.New(), uuid.New(), "Ada", "")
	require.NoError(t, err)

	other := NewTokenService(&config.Config{JWTSecret: "other-secret", AttemptTokenTTL: time.Hour})
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := newTestTokenService(-time.Minute)
	token, err := svc.MintAttemptToken(uuid.New(), uuid.New(), "Ada", "")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	_, err := newTestTokenService(time.Hour).ValidateToken("not-a-token")
	assert.Error(t, err)
}
