package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"super-feynman-go/internal/config"
	"super-feynman-go/pkg/log"
)

// RDB 为 nil 表示未启用 Redis（仅 sqlite 本地开发允许）。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接，地址为空时跳过。
func InitRedis(cfg config.RedisConfig) error {
	if cfg.Addr == "" {
		log.Warnf("未配置 Redis 地址, 会话锁与限流将退化为进程内实现")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return err
	}

	RDB = client
	log.Info("Redis client connected successfully")
	return nil
}
