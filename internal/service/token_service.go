package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/invigilo/invigilo-backend/internal/config"
)

// Claims are the attempt-token claims. An attempt token scopes every call a
// student makes during one proctored attempt; it is minted when the session
// starts and carries no authentication beyond that attempt.
type Claims struct {
	AttemptID    uuid.UUID `json:"attempt_id"`
	ExamID       uuid.UUID `json:"exam_id"`
	StudentName  string    `json:"student_name"`
	StudentEmail string    `json:"student_email,omitempty"`
	jwt.RegisteredClaims
}

// TokenService mints and validates attempt tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService from configuration.
func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.AttemptTokenTTL,
	}
}

// MintAttemptToken issues a signed token for one attempt.
func (s *TokenService) MintAttemptToken(attemptID, examID uuid.UUID, name, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		AttemptID:    attemptID,
		ExamID:       examID,
		StudentName:  name,
		StudentEmail: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   attemptID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign attempt token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies an attempt token.
func (s *TokenService) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse attempt token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("attempt token is not valid")
	}
	return claims, nil
}
