package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umadex/umadex-backend/internal/config"
)

func newAuth(secret string) *AuthService {
	return NewAuthService(&config.Config{JWTSecret: secret, JWTExpiry: time.Hour})
}

func TestAuthService_RoundTrip(t *testing.T) {
	auth := newAuth("s3cret")
	id := uuid.New()

	token, err := auth.GenerateToken(id, RoleTeacher)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, RoleTeacher, claims.Role)
}

func TestAuthService_RejectsForeignSecret(t *testing.T) {
	token, err := newAuth("one").GenerateToken(uuid.New(), RoleStudent)
	require.NoError(t, err)

	_, err = newAuth("two").ValidateToken(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestAuthService_RejectsExpired(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiry: -time.Minute})
	token, err := auth.GenerateToken(uuid.New(), RoleStudent)
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestAuthService_RejectsUnknownRole(t *testing.T) {
	claims := Claims{Role: "admin", UserID: uuid.New()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = newAuth("s3cret").ValidateToken(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestAuthService_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{Role: RoleStudent, UserID: uuid.New()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newAuth("s3cret").ValidateToken(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
