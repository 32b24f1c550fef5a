package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"omrzen/internal/domain"
)

// SessionStore keeps every session field in one Redis hash:
//
//	HSET {prefix}:session testConfig {json}
//	HSET {prefix}:session timeLeft   {seconds}
//
// A positive TTL applies to the hash as a whole and is refreshed on every write,
// so fields never expire independently of each other.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, prefix string, ttl time.Duration) *SessionStore {
	if prefix == "" {
		prefix = "omrzen"
	}
	return &SessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *SessionStore) Get(ctx context.Context, field domain.Field) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.key(), string(field)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", domain.ErrStorageUnavailable, field, err)
	}
	return value, true, nil
}

// Set writes the field and refreshes the session TTL in one transaction.
func (s *SessionStore) Set(ctx context.Context, field domain.Field, value string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(), string(field), value)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key(), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrStorageUnavailable, field, err)
	}
	return nil
}

// Delete issues a single HDEL, which Redis applies atomically across fields.
func (s *SessionStore) Delete(ctx context.Context, fields ...domain.Field) error {
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, string(f))
	}
	if err := s.client.HDel(ctx, s.key(), names...).Err(); err != nil {
		return fmt.Errorf("%w: delete: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SessionStore) key() string {
	return s.prefix + ":session"
}
