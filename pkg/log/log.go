// Package log 封装了全局的 zap SugaredLogger。
package log

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 未调用 Init 之前（例如单元测试中）使用空 logger。
var sugar = zap.NewNop().Sugar()

// Init 按级别与格式构建 logger。format 为 console 时输出彩色可读日志，否则输出 JSON。
// outputPath 非空时额外写入 <outputPath>/app.log。
func Init(level, format, outputPath string) {
	atomic := zap.NewAtomicLevelAt(zap.InfoLevel)
	if err := atomic.UnmarshalText([]byte(level)); err != nil {
		atomic.SetLevel(zap.InfoLevel)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = atomic
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if outputPath != "" {
		if err := os.MkdirAll(outputPath, 0o755); err == nil {
			cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(outputPath, "app.log"))
		}
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	sugar = logger.Sugar()
}

func Info(msg string) {
	sugar.Info(msg)
}

func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 以键值对形式记录结构化日志，用于请求日志等字段较多的场景。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

// Error 记录错误并把 err 作为 "error" 字段输出。
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

// Fatal 记录错误后退出进程，只应在启动阶段使用。
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 刷新缓冲的日志。
func Sync() {
	_ = sugar.Sync()
}
