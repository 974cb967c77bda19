package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache Redis 评分缓存
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache 包装已有客户端
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	var e Entry
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return e, false, nil
	}
	if err != nil {
		return e, false, fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, &e); err != nil {
		// 格式不对视为未命中
		r.misses.Add(1)
		return e, false, nil
	}
	r.hits.Add(1)
	return e, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Stats 通过 SCAN 统计前缀下的键数量
func (r *RedisCache) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Backend: "redis", Hits: r.hits.Load(), Misses: r.misses.Load()}
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		st.Keys++
	}
	if err := iter.Err(); err != nil {
		return st, fmt.Errorf("redis scan failed: %w", err)
	}
	return st, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
