package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// HealthHandler 报告数据库与 Redis 的连通性。
type HealthHandler struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。rdb 可为 nil。
func NewHealthHandler(db *gorm.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb}
}

// Check 数据库不可用时返回 503；Redis 只影响报告内容。
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		dbStatus = "down"
	}
	redisStatus := "disabled"
	if h.rdb != nil {
		redisStatus = "ok"
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			redisStatus = "down"
		}
	}

	status := http.StatusOK
	message := "ok"
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
		message = "database unavailable"
	}
	success(c, status, message, gin.H{"database": dbStatus, "redis": redisStatus})
}
