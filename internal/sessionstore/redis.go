package sessionstore

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in one redis hash: field user id, value token.
// The hash is loaded once at open; mutations write through before updating memory.
type RedisStore struct {
	client *redis.Client
	key    string
	sealer Sealer

	mu       sync.RWMutex
	sessions map[int64]string
}

// OpenRedis loads every session from the hash at key. An absent hash is an empty store.
func OpenRedis(ctx context.Context, client *redis.Client, key string, sealer Sealer) (*RedisStore, error) {
	raw, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("sessionstore: load %s: %w", key, err)
	}
	// Unreadable fields stay in the hash untouched; only their own user's Set or Delete replaces them.
	sessions, opaque := decodeEntries(raw, sealer, "redis")
	s := &RedisStore{client: client, key: key, sealer: sealer, sessions: sessions}
	log.Printf("sessionstore: loaded %d sessions from redis hash %s (%d unreadable kept)", len(sessions), key, len(opaque))
	return s, nil
}

func (s *RedisStore) Get(userID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.sessions[userID]
	return t, ok
}

func (s *RedisStore) Set(ctx context.Context, userID int64, token string) error {
	v, err := sealToken(s.sealer, token)
	if err != nil {
		return fmt.Errorf("sessionstore: seal user %d: %w", userID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.HSet(ctx, s.key, formatKey(userID), v).Err(); err != nil {
		return fmt.Errorf("sessionstore: set user %d: %w", userID, err)
	}
	s.sessions[userID] = token
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.HDel(ctx, s.key, formatKey(userID)).Err(); err != nil {
		return fmt.Errorf("sessionstore: delete user %d: %w", userID, err)
	}
	delete(s.sessions, userID)
	return nil
}

func (s *RedisStore) All() map[int64]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySessions(s.sessions)
}

func (s *RedisStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
