package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionBackend wraps Redis failures.
var ErrSessionBackend = errors.New("session backend unavailable")

// SessionStore keeps revoked token ids and single-use claims in Redis.
type SessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewSessionStore builds a store rooted at prefix.
func NewSessionStore(client redis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "ids"
	}
	return &SessionStore{redis: client, prefix: prefix}
}

func (s *SessionStore) revokedKey(tokenID string) string {
	return s.prefix + ":revoked:" + tokenID
}

func (s *SessionStore) claimKey(tokenID string) string {
	return s.prefix + ":claimed:" + tokenID
}

// Revoke marks tokenID revoked until ttl elapses. Non-positive ttls are a
// no-op since the token has already expired.
func (s *SessionStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.revokedKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked.
func (s *SessionStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return n > 0, nil
}

// ClaimOnce returns true for exactly one caller per tokenID within ttl.
func (s *SessionStore) ClaimOnce(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	ok, err := s.redis.SetNX(ctx, s.claimKey(tokenID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return ok, nil
}

// Release drops a claim so the token can be presented again.
func (s *SessionStore) Release(ctx context.Context, tokenID string) error {
	if err := s.redis.Del(ctx, s.claimKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return nil
}
