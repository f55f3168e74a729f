// Package database 管理关系型数据库与 Redis 连接。
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"super-feynman-go/internal/config"
	"super-feynman-go/internal/model"
	"super-feynman-go/pkg/log"
)

var DB *gorm.DB

// InitDB 根据配置的驱动初始化数据库连接并完成表结构迁移。
func InitDB(cfg config.DatabaseConfig) {
	var err error
	DB, err = Open(cfg)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	if err := AutoMigrate(DB); err != nil {
		log.Fatal("failed to migrate database", err)
	}
	log.Infof("%s database connected successfully", cfg.Driver)
}

// Open 打开一个数据库连接，driver 取值 mysql 或 sqlite。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "", "mysql":
		db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		// 配置连接池
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
		sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
		sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间
		return db, nil
	case "sqlite":
		return OpenSQLite(fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", cfg.SQLite.Path))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite 打开一个 SQLite 连接并开启外键约束。
// SQLite 不支持并发写，连接池限制为 1。
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate 按依赖顺序创建或更新所有表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Course{},
		&model.Lecture{},
		&model.Concept{},
		&model.ReviewSession{},
	)
}
