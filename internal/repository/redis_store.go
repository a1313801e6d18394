package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"avia-bot/internal/domain"
)

// redisAPI is the subset of *redis.Client used by RedisStore.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps dialog state as JSON values with a TTL, so several bot
// instances can share it.
type RedisStore struct {
	api    redisAPI
	prefix string
	ttl    time.Duration
}

// NewRedis returns a go-redis client for addr.
func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// NewRedisStore creates a RedisStore; keys are namespaced with prefix.
func NewRedisStore(api redisAPI, prefix string, ttl time.Duration) (*RedisStore, error) {
	if api == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "avia-bot"
	}
	return &RedisStore{api: api, prefix: prefix, ttl: ttlOrDefault(ttl)}, nil
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + ":state:" + userKey(userID)
}

func (r *RedisStore) GetState(ctx context.Context, userID int64) (domain.DialogState, bool, error) {
	raw, err := r.api.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DialogState{}, false, nil
	}
	if err != nil {
		return domain.DialogState{}, false, fmt.Errorf("repository: redis get state: %w", err)
	}
	s, err := decodeState(raw)
	if err != nil {
		return domain.DialogState{}, false, err
	}
	return s, true, nil
}

func (r *RedisStore) SaveState(ctx context.Context, s domain.DialogState) error {
	buf, err := encodeState(s)
	if err != nil {
		return err
	}
	if err := r.api.Set(ctx, r.key(s.UserID), buf, r.ttl).Err(); err != nil {
		return fmt.Errorf("repository: redis save state: %w", err)
	}
	return nil
}

func (r *RedisStore) DeleteState(ctx context.Context, userID int64) error {
	if err := r.api.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("repository: redis delete state: %w", err)
	}
	return nil
}
