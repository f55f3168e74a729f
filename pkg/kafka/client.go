// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"super-feynman-go/internal/config"
	"super-feynman-go/pkg/log"
	"super-feynman-go/pkg/tasks"
)

// maxAttempts 是同一任务失败多少次后放弃（提交 offset）。
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ConceptExtractionTask) error
}

// Producer 将概念抽取任务投递到 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// PublishExtractionTask 发送一个概念抽取任务，以讲义 ID 作为消息 key。
func (p *Producer) PublishExtractionTask(ctx context.Context, task tasks.ConceptExtractionTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("lecture-%d", task.LectureID)),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// AttemptCounter 记录任务的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string)
}

type redisAttemptCounter struct {
	rdb *redis.Client
}

// NewRedisAttemptCounter 使用 Redis 计数失败次数，计数 24 小时后过期。
func NewRedisAttemptCounter(rdb *redis.Client) AttemptCounter {
	return &redisAttemptCounter{rdb: rdb}
}

func (c *redisAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (c *redisAttemptCounter) Reset(ctx context.Context, key string) {
	_ = c.rdb.Del(ctx, key).Err()
}

func attemptsKey(task tasks.ConceptExtractionTask) string {
	return fmt.Sprintf("kafka:attempts:lecture:%d", task.LectureID)
}

// handleMessage 处理单条消息并返回是否应提交 offset。
func handleMessage(ctx context.Context, value []byte, processor TaskProcessor, counter AttemptCounter) bool {
	var task tasks.ConceptExtractionTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	log.Infof("开始处理概念抽取任务: LectureID=%d, Reason=%s", task.LectureID, task.Reason)
	key := attemptsKey(task)
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理概念抽取任务失败: LectureID=%d, Error: %v", task.LectureID, err)
		attempts, incErr := counter.Incr(ctx, key)
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		if attempts >= maxAttempts {
			log.Errorf("概念抽取任务多次失败(>=%d)，提交 offset 终止重试: LectureID=%d", maxAttempts, task.LectureID)
			counter.Reset(ctx, key)
			return true
		}
		return false
	}

	log.Infof("概念抽取任务处理成功: LectureID=%d", task.LectureID)
	counter.Reset(ctx, key)
	return true
}

// StartConsumer 启动一个 Kafka 消费者来处理概念抽取任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, counter AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}
		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		if handleMessage(ctx, m.Value, processor, counter) {
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
		// 不提交 offset 时，消费组重平衡或重启后会重新投递该消息
	}
}
