package utils

import (
	"MediSlot/cache"
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateResetCode generates a random 6-digit reset code.
func GenerateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate reset code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ResetCodeStore keeps one-time password reset codes in Redis with a TTL.
type ResetCodeStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewResetCodeStore(cache *cache.Cache, ttl time.Duration) *ResetCodeStore {
	return &ResetCodeStore{cache: cache, ttl: ttl}
}

// Set stores code for email, replacing any previous code.
func (s *ResetCodeStore) Set(ctx context.Context, email, code string) error {
	return s.cache.Set(ctx, resetCodeKey(email), code, s.ttl)
}

// Get returns the live code for email, or "" when none exists.
func (s *ResetCodeStore) Get(ctx context.Context, email string) (string, error) {
	return s.cache.Get(ctx, resetCodeKey(email))
}

// Delete deletes the reset code for a given email.
func (s *ResetCodeStore) Delete(ctx context.Context, email string) error {
	return s.cache.Delete(ctx, resetCodeKey(email))
}

func resetCodeKey(email string) string {
	return "reset_code:" + email
}
