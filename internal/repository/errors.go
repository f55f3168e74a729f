// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"super-feynman-go/pkg/apperr"
)

// wrapNotFound 将 gorm 的 ErrRecordNotFound 转为 apperr.ErrNotFound。
func wrapNotFound(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, apperr.ErrNotFound)
	}
	return err
}
