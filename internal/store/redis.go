package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pscheid92/sessionkeeper/internal/crypto"
	"github.com/pscheid92/sessionkeeper/internal/identity"
	"github.com/pscheid92/sessionkeeper/internal/metrics"
)

// Key schema:
//   session:{name}   — string: encrypted JSON token pair, TTL = refresh token lifetime

// RedisStore persists the slot in a single Redis key. The TTL tracks the
// refresh token expiry so a dead client's credentials age out on their own.
type RedisStore struct {
	rdb     *redis.Client
	name    string
	crypter crypto.Service
}

// NewRedisStore creates a RedisStore for the named slot.
func NewRedisStore(rdb *redis.Client, name string, crypter crypto.Service) *RedisStore {
	return &RedisStore{rdb: rdb, name: name, crypter: crypter}
}

func (s *RedisStore) key() string {
	return "session:" + s.name
}

func (s *RedisStore) Save(ctx context.Context, tokens *identity.TokenPair) error {
	err := s.save(ctx, tokens)
	metrics.ObserveStoreOp("save", err)
	return err
}

func (s *RedisStore) save(ctx context.Context, tokens *identity.TokenPair) error {
	payload, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	sealed, err := s.crypter.Encrypt(string(payload))
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	var ttl time.Duration
	if !tokens.RefreshTokenExpiresAt.IsZero() {
		ttl = time.Until(tokens.RefreshTokenExpiresAt)
		if ttl <= 0 {
			ttl = time.Second
		}
	}

	if err := s.rdb.Set(ctx, s.key(), sealed, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session key: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*identity.TokenPair, error) {
	tokens, err := s.load(ctx)
	metrics.ObserveStoreOp("load", err)
	return tokens, err
}

func (s *RedisStore) load(ctx context.Context) (*identity.TokenPair, error) {
	sealed, err := s.rdb.Get(ctx, s.key()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session key: %w", err)
	}

	opened, err := s.crypter.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	var tokens identity.TokenPair
	if err := json.Unmarshal([]byte(opened), &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &tokens, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	err := s.rdb.Del(ctx, s.key()).Err()
	metrics.ObserveStoreOp("clear", err)
	if err != nil {
		return fmt.Errorf("failed to delete session key: %w", err)
	}
	return nil
}
