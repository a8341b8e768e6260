package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNonceStore keeps nonces in Redis so every API instance shares them.
// Redis expires the keys itself.
type RedisNonceStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisNonceStore creates a store using keys under prefix.
func NewRedisNonceStore(client redis.UniversalClient, prefix string) *RedisNonceStore {
	if prefix == "" {
		prefix = "agenthire:nonce:"
	}
	return &RedisNonceStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisNonceStore) Put(ctx context.Context, key string, nonce Nonce) error {
	ttl := time.Until(nonce.ExpiresAt)
	if ttl <= 0 {
		return errors.New("nonce is already expired")
	}

	data, err := json.Marshal(nonce)
	if err != nil {
		return fmt.Errorf("marshal nonce: %w", err)
	}
	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

// Take reads and deletes the nonce in one GETDEL, so two concurrent takes
// cannot both succeed.
func (s *RedisNonceStore) Take(ctx context.Context, key string) (Nonce, error) {
	data, err := s.client.GetDel(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Nonce{}, ErrNonceNotFound
		}
		return Nonce{}, fmt.Errorf("redis getdel: %w", err)
	}

	var nonce Nonce
	if err := json.Unmarshal(data, &nonce); err != nil {
		return Nonce{}, fmt.Errorf("unmarshal nonce: %w", err)
	}
	if nonce.Expired(time.Now()) {
		return Nonce{}, ErrNonceNotFound
	}
	return nonce, nil
}

// Cleanup is a no-op; keys carry their own TTL.
func (s *RedisNonceStore) Cleanup(context.Context) (int, error) {
	return 0, nil
}
