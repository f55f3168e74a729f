package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"super-feynman-go/pkg/log"
)

// WindowCounter 对 key 在固定时间窗口内计数。
type WindowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisWindowCounter struct {
	rdb *redis.Client
}

// NewRedisWindowCounter 基于 Redis INCR + EXPIRE 实现固定窗口计数。
func NewRedisWindowCounter(rdb *redis.Client) WindowCounter {
	return &redisWindowCounter{rdb: rdb}
}

func (c *redisWindowCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimit 按客户端 IP 限制 window 内的请求数，超出返回 429。
// counter 为 nil 或计数失败时放行。
func RateLimit(counter WindowCounter, scope string, window time.Duration, max int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if counter == nil || max <= 0 {
			c.Next()
			return
		}
		bucket := time.Now().UnixNano() / int64(window)
		key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, c.ClientIP(), bucket)
		n, err := counter.Incr(c.Request.Context(), key, window)
		if err != nil {
			log.Warnf("[RateLimit] 计数失败, 放行请求: %v", err)
			c.Next()
			return
		}
		if n > int64(max) {
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "Too many requests, please try again later",
				"error":   "too_many_requests",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}
