// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/log"
)

// success 以统一的 {code, message, data} 结构返回。
func success(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

// fail 将错误映射为 HTTP 状态码，provider 的原始错误信息不会返回给客户端。
func fail(c *gin.Context, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[%s] 请求处理失败: %v", op, err)
	} else {
		log.Warnf("[%s] 请求被拒绝: %v", op, err)
	}
	c.JSON(status, gin.H{
		"code":    status,
		"message": apperr.Message(err),
		"error":   apperr.Kind(err),
		"data":    nil,
	})
}

// parseID 解析路径中的正整数 ID。
func parseID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", apperr.ErrInvalidInput, name, raw)
	}
	return uint(id), nil
}
