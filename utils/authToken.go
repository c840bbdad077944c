package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/o1egl/paseto"
)

// TokenStatus is the outcome of verifying an access token.
type TokenStatus int

const (
	TokenValid TokenStatus = iota
	TokenExpired
	TokenMalformed
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "malformed"
	}
}

// TokenClaims struct represents the data in the token (UserID, Role, Expiry).
type TokenClaims struct {
	UserID string    `json:"userId"`
	Role   string    `json:"role"`
	Expiry time.Time `json:"expiry"`
}

// TokenMaker issues and verifies PASETO v2 local tokens.
type TokenMaker struct {
	symmetricKey []byte
	expiry       time.Duration
	now          func() time.Time
}

// NewTokenMaker requires a 32 byte symmetric key.
func NewTokenMaker(symmetricKey string, expiry time.Duration) (*TokenMaker, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be 32 bytes long, got %d", len(symmetricKey))
	}
	if expiry <= 0 {
		return nil, errors.New("token expiry must be positive")
	}
	return &TokenMaker{symmetricKey: []byte(symmetricKey), expiry: expiry, now: time.Now}, nil
}

// GenerateAccessToken generates an access token for a user.
func (m *TokenMaker) GenerateAccessToken(userID, role string) (string, error) {
	claims := TokenClaims{
		UserID: userID,
		Role:   role,
		Expiry: m.now().Add(m.expiry),
	}
	token, err := paseto.NewV2().Encrypt(m.symmetricKey, claims, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// VerifyToken decrypts tokenString and checks its expiry. Claims are only
// returned with TokenValid.
func (m *TokenMaker) VerifyToken(tokenString string) (*TokenClaims, TokenStatus) {
	if tokenString == "" {
		return nil, TokenMalformed
	}
	var claims TokenClaims
	if err := paseto.NewV2().Decrypt(tokenString, m.symmetricKey, &claims, nil); err != nil {
		return nil, TokenMalformed
	}
	if claims.UserID == "" || claims.Role == "" {
		return nil, TokenMalformed
	}
	if !m.now().Before(claims.Expiry) {
		return nil, TokenExpired
	}
	return &claims, TokenValid
}

// HasRole reports whether claims carry one of roles. No roles means any role.
func (c *TokenClaims) HasRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}
