package cart

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-pcparts-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps a cart as a hash product_id -> quantity that expires
// after a period without changes.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = redisx.TTLCart
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func key(userID string) string { return fmt.Sprintf(redisx.KeyCart, userID) }

func (s *RedisStore) Items(ctx context.Context, userID string) ([]Item, error) {
	raw, err := s.rdb.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cart %s: %w", userID, err)
	}
	m := make(map[string]int, len(raw))
	for id, v := range raw {
		q, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("cart %s: bad quantity for %s: %w", userID, id, err)
		}
		m[id] = q
	}
	return sorted(m), nil
}

func (s *RedisStore) Add(ctx context.Context, userID, productID string, qty int) ([]Item, error) {
	if err := validate(productID, qty); err != nil {
		return nil, err
	}
	k := key(userID)
	if err := s.rdb.HIncrBy(ctx, k, productID, int64(qty)).Err(); err != nil {
		return nil, fmt.Errorf("cart %s: %w", userID, err)
	}
	if err := s.rdb.Expire(ctx, k, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("cart %s: %w", userID, err)
	}
	return s.Items(ctx, userID)
}

func (s *RedisStore) Remove(ctx context.Context, userID, productID string) error {
	n, err := s.rdb.HDel(ctx, key(userID), productID).Result()
	if err != nil {
		return fmt.Errorf("cart %s: %w", userID, err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("cart %s: %w", userID, err)
	}
	return nil
}
