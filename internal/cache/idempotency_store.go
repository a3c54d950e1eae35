package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creatorhub/backend/internal/middleware"
)

const idempotencyPrefix = "payouts:idempotency:"

// IdempotencyStore keeps Idempotency-Key outcomes in Redis hashes that
// expire after the configured TTL.
type IdempotencyStore struct {
	client *redis.Client
}

func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*middleware.IdempotencyRecord, error) {
	data, err := s.client.HGetAll(ctx, idempotencyPrefix+key).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	rec := &middleware.IdempotencyRecord{
		RequestHash: data["request_hash"],
		Body:        []byte(data["body"]),
		Completed:   data["completed"] == "1",
	}
	if raw, ok := data["status_code"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			rec.StatusCode = n
		}
	}
	return rec, nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (bool, error) {
	redisKey := idempotencyPrefix + key
	var set *redis.BoolCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		set = p.HSetNX(ctx, redisKey, "request_hash", requestHash)
		p.ExpireNX(ctx, redisKey, ttl)
		return nil
	})
	if err != nil {
		return false, err
	}
	return set.Val(), nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, statusCode int, body []byte, ttl time.Duration) error {
	redisKey := idempotencyPrefix + key
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, redisKey, "status_code", statusCode, "body", body, "completed", "1")
		p.Expire(ctx, redisKey, ttl)
		return nil
	})
	return err
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyPrefix+key).Err()
}
