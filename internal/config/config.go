// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Review        ReviewConfig        `mapstructure:"review"`
	Upload        UploadConfig        `mapstructure:"upload"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
// Driver 取值 mysql 或 sqlite，sqlite 主要用于本地开发。
type DatabaseConfig struct {
	Driver string       `mapstructure:"driver"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储 SQLite 数据库文件路径。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// RetryConfig 描述外部模型调用的重试策略。
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
}

// BaseDelay 返回首次重试前的等待时长。
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// WorstCase 返回一次带重试的调用最长耗时：每次尝试都超时，再加上全部退避等待。
func (r RetryConfig) WorstCase(timeout time.Duration) time.Duration {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := r.BaseDelay() * time.Duration((1<<(attempts-1))-1)
	return time.Duration(attempts)*timeout + backoff
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	Model          string              `mapstructure:"model"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
	Retry          RetryConfig         `mapstructure:"retry"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// TranscriptionConfig 存储语音转写服务的配置（OpenAI 兼容接口）。
type TranscriptionConfig struct {
	APIKey         string      `mapstructure:"api_key"`
	BaseURL        string      `mapstructure:"base_url"`
	Model          string      `mapstructure:"model"`
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	Retry          RetryConfig `mapstructure:"retry"`
}

// ReviewConfig 控制复习会话。MaxTurns 为 0 表示不限制用户发言次数。
// LockTTLSeconds 不会低于一次大模型调用的最长耗时，见 MinLockTTL。
type ReviewConfig struct {
	MaxTurns        int `mapstructure:"max_turns"`
	LockTTLSeconds  int `mapstructure:"lock_ttl_seconds"`
	LockWaitSeconds int `mapstructure:"lock_wait_seconds"`
}

// UploadConfig 存储上传限制与临时目录。
type UploadConfig struct {
	TempDir       string `mapstructure:"temp_dir"`
	MaxNotesBytes int64  `mapstructure:"max_notes_bytes"`
	MaxAudioBytes int64  `mapstructure:"max_audio_bytes"`
}

// RateLimitConfig 存储基于 Redis 的固定窗口限流配置。
type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	WindowMinutes int  `mapstructure:"window_minutes"`
	APIMax        int  `mapstructure:"api_max"`
	UploadMax     int  `mapstructure:"upload_max"`
}

// CORSConfig 存储跨域配置。
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。为空时只接受 .txt 与 .md 笔记。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。BaseURL 为空时不生成向量。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// lockMargin 为大模型调用之外的数据库读写预留的时间。
const lockMargin = 10 * time.Second

// MinLockTTL 返回会话锁的最小过期时间，保证锁不会在一次带重试的大模型调用完成前失效。
func (c Config) MinLockTTL() time.Duration {
	return c.LLM.Retry.WorstCase(time.Duration(c.LLM.TimeoutSeconds)*time.Second) + lockMargin
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.sqlite.path", "super_feynman.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.retry.max_attempts", 3)
	v.SetDefault("llm.retry.base_delay_ms", 1000)
	v.SetDefault("transcription.model", "whisper-1")
	v.SetDefault("transcription.timeout_seconds", 120)
	v.SetDefault("transcription.retry.max_attempts", 3)
	v.SetDefault("transcription.retry.base_delay_ms", 1000)
	v.SetDefault("review.max_turns", 5)
	v.SetDefault("review.lock_ttl_seconds", 200)
	v.SetDefault("review.lock_wait_seconds", 90)
	v.SetDefault("upload.max_notes_bytes", 5*1024*1024)
	v.SetDefault("upload.max_audio_bytes", 25*1024*1024)
	v.SetDefault("rate_limit.window_minutes", 15)
	v.SetDefault("rate_limit.api_max", 100)
	v.SetDefault("rate_limit.upload_max", 10)
	v.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("kafka.topic", "concept-extraction")
	v.SetDefault("kafka.group_id", "super-feynman-go-consumer")
	v.SetDefault("elasticsearch.index_name", "concepts")
}

// Load 从指定路径读取 YAML 配置，并允许以 SF_ 前缀的环境变量覆盖（如 SF_LLM_API_KEY）。
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if floor := cfg.MinLockTTL(); time.Duration(cfg.Review.LockTTLSeconds)*time.Second < floor {
		cfg.Review.LockTTLSeconds = int((floor + time.Second - 1) / time.Second)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
