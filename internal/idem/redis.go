package idem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pcparts-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares idempotency keys across API replicas.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = redisx.TTLIdempotency
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	b, err := s.rdb.Get(ctx, fmt.Sprintf(redisx.KeyIdemOrderCreate, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idem get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, false, fmt.Errorf("idem decode %s: %w", key, err)
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, rec Record) (bool, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	ok, err := s.rdb.SetNX(ctx, fmt.Sprintf(redisx.KeyIdemOrderCreate, key), b, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idem put: %w", err)
	}
	return ok, nil
}
