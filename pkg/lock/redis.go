package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"super-feynman-go/pkg/log"
)

// 仅当值仍为本次加锁的 token 时才删除，避免误删他人在过期后重新获取的锁。
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 实现的分布式锁，多实例部署时使用。
type RedisLocker struct {
	rdb  *redis.Client
	ttl  time.Duration
	wait time.Duration
	poll time.Duration
}

// NewRedisLocker 创建一个 RedisLocker。ttl 是锁的自动过期时间，wait 是最长等待时间。
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl, wait: wait, poll: 50 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := fmt.Sprintf("lock:%s", key)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return func() {
		// 释放锁不应受请求 ctx 取消的影响
		if err := unlockScript.Run(context.Background(), l.rdb, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
			log.Warnf("[RedisLocker] 释放锁 %s 失败: %v", redisKey, err)
		}
	}, nil
}
