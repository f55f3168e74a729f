// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"super-feynman-go/internal/config"
	"super-feynman-go/internal/gateway"
	"super-feynman-go/internal/handler"
	"super-feynman-go/internal/middleware"
	"super-feynman-go/internal/pipeline"
	"super-feynman-go/internal/repository"
	"super-feynman-go/internal/service"
	"super-feynman-go/pkg/database"
	"super-feynman-go/pkg/embedding"
	"super-feynman-go/pkg/es"
	"super-feynman-go/pkg/kafka"
	"super-feynman-go/pkg/llm"
	"super-feynman-go/pkg/lock"
	"super-feynman-go/pkg/log"
	"super-feynman-go/pkg/retry"
	"super-feynman-go/pkg/speech"
	"super-feynman-go/pkg/storage"
	"super-feynman-go/pkg/tika"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	if cfg.LLM.APIKey == "" {
		log.Warnf("未配置 LLM API Key (SF_LLM_API_KEY)，概念抽取与复习会话将不可用")
	}

	// 3. 初始化数据库和 Redis
	database.InitDB(cfg.Database)
	if err := database.InitRedis(cfg.Database.Redis); err != nil {
		if cfg.Database.Driver == "sqlite" {
			log.Warnf("Redis 连接失败，本地模式下继续运行: %v", err)
		} else {
			log.Fatal("Redis 连接失败", err)
		}
	}

	// 4. 可选基础设施：MinIO、Elasticsearch、Kafka
	embeddingClient := embedding.NewClient(cfg.Embedding)

	var store storage.ObjectStore
	if cfg.MinIO.Enabled {
		store = storage.InitMinIO(cfg.MinIO)
	}

	var index es.ConceptIndex
	if cfg.Elasticsearch.Enabled {
		dims := 0
		if embeddingClient != nil {
			dims = cfg.Embedding.Dimensions
		}
		var err error
		index, err = es.InitES(cfg.Elasticsearch, dims)
		if err != nil {
			log.Errorf("es 初始化失败 %s", err)
			return
		}
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		if database.RDB == nil {
			log.Fatal("启用 Kafka 时必须配置 Redis", fmt.Errorf("redis unavailable"))
		}
		producer = kafka.InitProducer(cfg.Kafka)
	}

	// 5. 初始化 Repository
	courseRepo := repository.NewCourseRepository(database.DB)
	lectureRepo := repository.NewLectureRepository(database.DB)
	conceptRepo := repository.NewConceptRepository(database.DB)
	sessionRepo := repository.NewReviewSessionRepository(database.DB)

	// 6. 初始化外部模型网关 (带重试)
	llmGateway := gateway.NewLLMGateway(llm.NewClient(cfg.LLM), retry.Policy{
		MaxAttempts: cfg.LLM.Retry.MaxAttempts,
		BaseDelay:   cfg.LLM.Retry.BaseDelay(),
	})
	speechGateway := gateway.NewSpeechGateway(speech.NewClient(cfg.Transcription), retry.Policy{
		MaxAttempts: cfg.Transcription.Retry.MaxAttempts,
		BaseDelay:   cfg.Transcription.Retry.BaseDelay(),
	})

	var locker lock.Locker = lock.NewMemoryLocker()
	if database.RDB != nil {
		locker = lock.NewRedisLocker(database.RDB,
			time.Duration(cfg.Review.LockTTLSeconds)*time.Second,
			time.Duration(cfg.Review.LockWaitSeconds)*time.Second)
	}

	// 7. 初始化 Service (依赖注入)
	extractor := pipeline.NewConceptExtractor(llmGateway, conceptRepo, index, embeddingClient)
	deps := service.LectureDeps{Store: store, Index: index}
	if producer != nil {
		deps.Publisher = producer
	}
	if tikaClient := tika.NewClient(cfg.Tika); tikaClient != nil {
		deps.Extractor = tikaClient
	}

	courseService := service.NewCourseService(courseRepo, lectureRepo, store, index)
	lectureService := service.NewLectureService(courseRepo, lectureRepo, conceptRepo, extractor, cfg.Upload.MaxNotesBytes, deps)
	conceptService := service.NewConceptService(conceptRepo, index, embeddingClient)
	reviewService := service.NewReviewService(llmGateway, conceptRepo, sessionRepo, locker,
		service.WithMaxTurns(cfg.Review.MaxTurns))
	transcribeService := service.NewTranscribeService(speechGateway, cfg.Upload.MaxAudioBytes)

	// 8. 启动后台 Kafka 消费者
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	consumerDone := make(chan struct{})
	if producer != nil {
		processor := pipeline.NewProcessor(lectureRepo, conceptRepo, extractor)
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(consumerCtx, cfg.Kafka, processor, kafka.NewRedisAttemptCounter(database.RDB))
		}()
	} else {
		close(consumerDone)
	}

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(cfg.CORS))

	var apiLimit, uploadLimit gin.HandlerFunc
	if cfg.RateLimit.Enabled && database.RDB != nil {
		counter := middleware.NewRedisWindowCounter(database.RDB)
		window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
		apiLimit = middleware.RateLimit(counter, "api", window, cfg.RateLimit.APIMax)
		uploadLimit = middleware.RateLimit(counter, "upload", window, cfg.RateLimit.UploadMax)
	}

	// 10. 注册路由
	handler.RegisterRoutes(r, handler.Handlers{
		Course:     handler.NewCourseHandler(courseService, lectureService),
		Lecture:    handler.NewLectureHandler(lectureService, conceptService, cfg.Upload.MaxNotesBytes),
		Concept:    handler.NewConceptHandler(conceptService),
		Review:     handler.NewReviewHandler(reviewService),
		ReviewWS:   handler.NewReviewSocketHandler(reviewService),
		Transcribe: handler.NewTranscribeHandler(transcribeService, cfg.Upload.TempDir, cfg.Upload.MaxAudioBytes),
		Health:     handler.NewHealthHandler(database.DB, database.RDB),
	}, apiLimit, uploadLimit)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	stopConsumer()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
