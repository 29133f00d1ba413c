package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "intake:session:"

// RedisStore implements Store on Redis. TTL is applied on every write so an
// abandoned session expires a fixed window after its last activity.
type RedisStore struct {
	client *backend.Client
	prefix string
}

// NewRedisStore connects a Redis-backed session store.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return NewRedisStoreFromClient(backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

// NewRedisStoreFromClient wraps an existing client (used by tests).
func NewRedisStoreFromClient(client *backend.Client) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Get(ctx context.Context, id string) (*State, error) {
	val, err := r.client.Get(ctx, r.key(id)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis store: get session %s: %w", id, err)
	}
	var st State
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, fmt.Errorf("redis store: decode session %s: %w", id, err)
	}
	return &st, nil
}

func (r *RedisStore) Put(ctx context.Context, id string, st *State, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis store: encode session %s: %w", id, err)
	}
	if err := r.client.Set(ctx, r.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis store: set session %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis store: delete session %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error { return r.client.Close() }
