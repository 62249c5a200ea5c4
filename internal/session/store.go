// Package session issues and validates opaque bearer tokens backed by Redis.
// Tokens expire server side; a restart of the API never invalidates them and
// revocation takes effect across all replicas at once.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vigilhq/checkin-engine/internal/domain"
)

const (
	keyPrefix  = "session:"
	defaultTTL = 30 * 24 * time.Hour
)

// Store manages the token lifecycle.
type Store interface {
	Create(ctx context.Context, memberID string) (string, error)
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisStore(client *goredis.Client, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

// Create mints a fresh opaque token for the member. Tokens carry no encoded
// claims; the Redis value is the only mapping back to the member.
func (s *RedisStore) Create(ctx context.Context, memberID string) (string, error) {
	if strings.TrimSpace(memberID) == "" {
		return "", fmt.Errorf("%w: member id is required", domain.ErrValidation)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	token := uuid.NewString()
	if err := s.client.Set(ctx, keyPrefix+token, memberID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return token, nil
}

// Lookup resolves a token to its member ID. Expired and revoked tokens both
// surface as domain.ErrNotFound.
func (s *RedisStore) Lookup(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	memberID, err := s.client.Get(ctx, keyPrefix+token).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up session: %w", err)
	}

	return memberID, nil
}

func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
