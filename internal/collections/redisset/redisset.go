// Package redisset implements the multi-worker collections backend over
// Redis, the "shared key-value store" SPEC_FULL.md §2 names. Grounded on
// the original's RedisSetCollection split in docker_client.py: the manager
// picks this backend automatically when REDIS_ENABLED is set.
package redisset

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Set is a Redis-backed membership set using SADD's return value as the
// atomic test-and-set the port arbiter depends on.
type Set struct {
	rdb *redis.Client
	key string
}

// NewSet builds a Set scoped to one Redis key (e.g. "sandboxrt:ports").
func NewSet(rdb *redis.Client, key string) *Set {
	return &Set{rdb: rdb, key: key}
}

func (s *Set) Add(ctx context.Context, member string) (bool, error) {
	n, err := s.rdb.SAdd(ctx, s.key, member).Result()
	if err != nil {
		return false, fmt.Errorf("redisset: sadd: %w", err)
	}
	return n == 1, nil
}

func (s *Set) Remove(ctx context.Context, member string) error {
	if err := s.rdb.SRem(ctx, s.key, member).Err(); err != nil {
		return fmt.Errorf("redisset: srem: %w", err)
	}
	return nil
}

func (s *Set) Contains(ctx context.Context, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.key, member).Result()
	if err != nil {
		return false, fmt.Errorf("redisset: sismember: %w", err)
	}
	return ok, nil
}

func (s *Set) Members(ctx context.Context) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisset: smembers: %w", err)
	}
	return members, nil
}

// Queue is a Redis-backed FIFO using RPUSH/LPOP.
type Queue struct {
	rdb *redis.Client
	key string
}

// NewQueue builds a Queue scoped to one Redis key.
func NewQueue(rdb *redis.Client, key string) *Queue {
	return &Queue{rdb: rdb, key: key}
}

func (q *Queue) Push(ctx context.Context, value string) error {
	if err := q.rdb.RPush(ctx, q.key, value).Err(); err != nil {
		return fmt.Errorf("redisset: rpush: %w", err)
	}
	return nil
}

func (q *Queue) Pop(ctx context.Context) (string, bool, error) {
	value, err := q.rdb.LPop(ctx, q.key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisset: lpop: %w", err)
	}
	return value, true, nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redisset: llen: %w", err)
	}
	return int(n), nil
}

// KV is a Redis-backed string map using a hash so Keys() can enumerate
// without a KEYS scan.
type KV struct {
	rdb *redis.Client
	key string
}

// NewKV builds a KV scoped to one Redis hash key.
func NewKV(rdb *redis.Client, key string) *KV {
	return &KV{rdb: rdb, key: key}
}

func (k *KV) Set(ctx context.Context, field, value string) error {
	if err := k.rdb.HSet(ctx, k.key, field, value).Err(); err != nil {
		return fmt.Errorf("redisset: hset: %w", err)
	}
	return nil
}

func (k *KV) Get(ctx context.Context, field string) (string, bool, error) {
	v, err := k.rdb.HGet(ctx, k.key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisset: hget: %w", err)
	}
	return v, true, nil
}

func (k *KV) Delete(ctx context.Context, field string) error {
	if err := k.rdb.HDel(ctx, k.key, field).Err(); err != nil {
		return fmt.Errorf("redisset: hdel: %w", err)
	}
	return nil
}

func (k *KV) Keys(ctx context.Context) ([]string, error) {
	fields, err := k.rdb.HKeys(ctx, k.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisset: hkeys: %w", err)
	}
	return fields, nil
}
