package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config 评分缓存配置
type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
	TTL      time.Duration
}

// NewResultCache 根据配置创建缓存
// 未启用时返回 NopCache
func NewResultCache(ctx context.Context, config *Config) (ResultCache, error) {
	if config == nil || !config.Enabled {
		return NewNopCache(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败 (%s): %w", config.Addr, err)
	}
	return NewRedisCache(client, config.Prefix, config.TTL), nil
}
