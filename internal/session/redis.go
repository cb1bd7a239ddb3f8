package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces registry keys in a shared Redis instance.
const redisKeyPrefix = "callforge:session:"

// redisSafetyTTL caps how long a session key can outlive its last write.
// Registry eviction is the normal removal path; the key TTL only protects
// Redis from keys orphaned by a crash between hangup and eviction.
const redisSafetyTTL = time.Hour

// RedisStore implements Store on Redis. Per-key mutation ordering is
// still enforced by the Registry's local critical sections; this store
// only provides the keyed persistence.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*CallSession, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}

	var sess CallSession
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &sess, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, sess *CallSession) error {
	val, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.CallControlID, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+sess.CallControlID, val, redisSafetyTTL).Err(); err != nil {
		return fmt.Errorf("storing session %s: %w", sess.CallControlID, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context) ([]*CallSession, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	out := make([]*CallSession, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		var sess CallSession
		if err := json.Unmarshal([]byte(str), &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	return out, nil
}

// scanKeys collects all registry keys via SCAN to avoid blocking Redis
// with KEYS on large keyspaces.
func (s *RedisStore) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning sessions: %w", err)
	}
	return keys, nil
}
